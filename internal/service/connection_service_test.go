package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"social-connect/config"
	"social-connect/internal/membership"
	"social-connect/internal/model"
	"social-connect/internal/repository"
	"social-connect/internal/testutil"
	"social-connect/internal/throttle"
	"social-connect/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	pushes chan recordedPush
	err    error
	panic  bool
}

type recordedPush struct {
	userID uint
	push   Push
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{pushes: make(chan recordedPush, 16)}
}

func (n *recordingNotifier) SendPushToUser(_ context.Context, userID uint, push Push) error {
	if n.panic {
		panic("notifier exploded")
	}
	n.pushes <- recordedPush{userID: userID, push: push}
	return n.err
}

func (n *recordingNotifier) next(t *testing.T) recordedPush {
	t.Helper()
	select {
	case p := <-n.pushes:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for push")
		return recordedPush{}
	}
}

type fixture struct {
	db       *gorm.DB
	svc      *ConnectionService
	clock    *fakeClock
	notifier *recordingNotifier
	users    []model.User
}

func newFixture(t *testing.T, userCount int, opts ...Option) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	notifier := newRecordingNotifier()

	opts = append([]Option{WithClock(clock.Now)}, opts...)
	svc := NewConnectionService(
		NewConnectionStore(db),
		repository.NewUserRepository(db),
		repository.NewBlockRepository(db),
		notifier,
		opts...,
	)

	return &fixture{
		db:       db,
		svc:      svc,
		clock:    clock,
		notifier: notifier,
		users:    testutil.CreateUsers(t, db, userCount, ""),
	}
}

func (f *fixture) id(i int) uint { return f.users[i].ID }

func raw(id uint) string { return strconv.FormatUint(uint64(id), 10) }

func requireKind(t *testing.T, err error, kind apperr.Kind) *apperr.Error {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok, "expected *apperr.Error, got %T: %v", err, err)
	require.Equal(t, kind, appErr.Kind, appErr.Error())
	return appErr
}

func countRequests(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&model.FriendRequest{}).Count(&n).Error)
	return n
}

func TestSendFriendRequest_Validation(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	a := f.id(0)

	_, err := f.svc.SendFriendRequest(ctx, a, raw(a), "me")
	requireKind(t, err, apperr.BadRequest)

	for _, bad := range []string{"", "abc", "-1", "0", "1.5"} {
		_, err := f.svc.SendFriendRequest(ctx, a, bad, "hi")
		requireKind(t, err, apperr.BadRequest)
	}

	_, err = f.svc.SendFriendRequest(ctx, a, "99999", "hi")
	requireKind(t, err, apperr.NotFound)
}

func TestSendFriendRequest_SelfAlwaysBadRequest(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	a, b := f.id(0), f.id(1)

	_, err := f.svc.SendFriendRequest(ctx, a, raw(b), "hi")
	require.NoError(t, err)

	_, err = f.svc.SendFriendRequest(ctx, a, raw(a), "me")
	requireKind(t, err, apperr.BadRequest)
}

func TestSendFriendRequest_CreatesPendingAndPushes(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	a, b := f.id(0), f.id(1)

	req, err := f.svc.SendFriendRequest(ctx, a, raw(b), "hello")
	require.NoError(t, err)
	assert.Equal(t, model.FriendRequestPending, req.Status)
	assert.Equal(t, "hello", req.Message)
	assert.True(t, req.LastRequestDate.Equal(f.clock.Now()))

	push := f.notifier.next(t)
	assert.Equal(t, b, push.userID)
	assert.Equal(t, "friend_request", push.push.Data["type"])
	assert.Equal(t, raw(req.ID), push.push.Data["request_id"])

	// 重复发送
	_, err = f.svc.SendFriendRequest(ctx, a, raw(b), "hello again")
	requireKind(t, err, apperr.Conflict)
}

func TestSendFriendRequest_ReversePendingConflict(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	a, b := f.id(0), f.id(1)

	req, err := f.svc.SendFriendRequest(ctx, a, raw(b), "hi")
	require.NoError(t, err)

	_, err = f.svc.SendFriendRequest(ctx, b, raw(a), "hi back")
	appErr := requireKind(t, err, apperr.Conflict)
	assert.Equal(t, req.ID, appErr.Details["requestId"])
	assert.Equal(t, int64(1), countRequests(t, f.db))
}

func TestAcceptFriendRequest(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	a, b, c := f.id(0), f.id(1), f.id(2)

	req, err := f.svc.SendFriendRequest(ctx, a, raw(b), "hi")
	require.NoError(t, err)
	f.notifier.next(t)

	// 非接收者
	_, err = f.svc.AcceptFriendRequest(ctx, c, req.ID)
	requireKind(t, err, apperr.Conflict)
	_, err = f.svc.AcceptFriendRequest(ctx, a, req.ID)
	requireKind(t, err, apperr.Conflict)

	edge, err := f.svc.AcceptFriendRequest(ctx, b, req.ID)
	require.NoError(t, err)
	assert.NotZero(t, edge.ID)

	push := f.notifier.next(t)
	assert.Equal(t, a, push.userID)
	assert.Equal(t, "friend_accepted", push.push.Data["type"])

	for _, pair := range [][2]uint{{a, b}, {b, a}} {
		status, err := f.svc.GetFriendshipStatus(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.Equal(t, StatusSOAF, status.Status)
	}

	_, err = f.svc.AcceptFriendRequest(ctx, b, req.ID)
	requireKind(t, err, apperr.NotFound)

	_, err = f.svc.AcceptFriendRequest(ctx, b, 424242)
	requireKind(t, err, apperr.NotFound)

	// 已是好友后再发请求
	_, err = f.svc.SendFriendRequest(ctx, b, raw(a), "hi")
	requireKind(t, err, apperr.Unprocessable)
}

func TestAcceptFriendRequest_EdgeAlreadyExists(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	a, b := f.id(0), f.id(1)

	req, err := f.svc.SendFriendRequest(ctx, a, raw(b), "hi")
	require.NoError(t, err)

	// 人为制造不一致：已有好友关系但请求仍为 PENDING
	_, err = repository.NewFriendshipRepository(f.db).Create(ctx, a, b)
	require.NoError(t, err)

	_, err = f.svc.AcceptFriendRequest(ctx, b, req.ID)
	requireKind(t, err, apperr.Unprocessable)

	got, err := repository.NewFriendRequestRepository(f.db).GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FriendRequestPending, got.Status, "transaction must not flip status")
}

func TestRejectAndCooldownBoundaries(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	a, b := f.id(0), f.id(1)

	req, err := f.svc.SendFriendRequest(ctx, a, raw(b), "hi")
	require.NoError(t, err)

	_, err = f.svc.RejectFriendRequest(ctx, a, req.ID)
	requireKind(t, err, apperr.Conflict)

	t0 := f.clock.Now().Add(time.Hour)
	f.clock.Advance(time.Hour)
	rejected, err := f.svc.RejectFriendRequest(ctx, b, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FriendRequestRejected, rejected.Status)
	assert.True(t, rejected.LastRequestDate.Equal(t0))

	_, err = f.svc.RejectFriendRequest(ctx, b, req.ID)
	requireKind(t, err, apperr.NotFound)

	// 第2天
	f.clock.Advance(2 * 24 * time.Hour)
	_, err = f.svc.SendFriendRequest(ctx, a, raw(b), "please")
	appErr := requireKind(t, err, apperr.Conflict)
	assert.Equal(t, 5, appErr.Details["remainingDays"])

	status, err := f.svc.GetFriendshipStatus(ctx, a, b)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, status.Status)
	require.NotNil(t, status.RemainingDays)
	assert.Equal(t, 5, *status.RemainingDays)

	// 差一分钟满7天
	f.clock.now = t0.Add(6*24*time.Hour + 23*time.Hour + 59*time.Minute)
	_, err = f.svc.SendFriendRequest(ctx, a, raw(b), "please")
	appErr = requireKind(t, err, apperr.Conflict)
	assert.Equal(t, 1, appErr.Details["remainingDays"])

	// 超过7天1秒
	f.clock.now = t0.Add(7*24*time.Hour + time.Second)
	resent, err := f.svc.SendFriendRequest(ctx, a, raw(b), "one more time")
	require.NoError(t, err)
	assert.Equal(t, req.ID, resent.ID, "resend keeps record identity")
	assert.Equal(t, model.FriendRequestPending, resent.Status)

	stored, err := repository.NewFriendRequestRepository(f.db).GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FriendRequestPending, stored.Status)
	assert.Equal(t, "one more time", stored.Message)
	assert.True(t, stored.LastRequestDate.Equal(f.clock.Now()))
	assert.Equal(t, int64(1), countRequests(t, f.db))
}

func TestSendFriendRequest_MirroredRejectedConflict(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	a, b := f.id(0), f.id(1)

	req, err := f.svc.SendFriendRequest(ctx, a, raw(b), "hi")
	require.NoError(t, err)
	_, err = f.svc.RejectFriendRequest(ctx, b, req.ID)
	require.NoError(t, err)

	// 拒绝方反向发送：冷却期内外都不改变记录
	for _, advance := range []time.Duration{time.Hour, 30 * 24 * time.Hour} {
		f.clock.Advance(advance)
		_, err = f.svc.SendFriendRequest(ctx, b, raw(a), "changed my mind")
		requireKind(t, err, apperr.Conflict)
	}

	stored, err := repository.NewFriendRequestRepository(f.db).GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FriendRequestRejected, stored.Status)
	assert.Equal(t, a, stored.SenderID)
}

func TestSendFriendRequest_AcceptedWithoutEdgeIsServerError(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	a, b := f.id(0), f.id(1)

	require.NoError(t, repository.NewFriendRequestRepository(f.db).Create(ctx, &model.FriendRequest{
		SenderID: a, ReceiverID: b, Status: model.FriendRequestAccepted, LastRequestDate: f.clock.Now(),
	}))

	_, err := f.svc.SendFriendRequest(ctx, a, raw(b), "hi")
	requireKind(t, err, apperr.ServerError)

	status, err := f.svc.GetFriendshipStatus(ctx, a, b)
	require.NoError(t, err)
	assert.Equal(t, StatusNotFriend, status.Status)
}

func TestUnfriend_ClearsHistory(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	a, b := f.id(0), f.id(1)

	err := f.svc.Unfriend(ctx, a, b)
	requireKind(t, err, apperr.NotFound)

	req, err := f.svc.SendFriendRequest(ctx, a, raw(b), "hi")
	require.NoError(t, err)
	_, err = f.svc.AcceptFriendRequest(ctx, b, req.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Unfriend(ctx, b, a))
	assert.Zero(t, countRequests(t, f.db))

	status, err := f.svc.GetFriendshipStatus(ctx, a, b)
	require.NoError(t, err)
	assert.Equal(t, StatusNotFriend, status.Status)

	// 之前被接受过，仍然可以从头开始；方向也可以反过来
	fresh, err := f.svc.SendFriendRequest(ctx, b, raw(a), "again")
	require.NoError(t, err)
	assert.NotEqual(t, req.ID, fresh.ID)
	assert.Equal(t, model.FriendRequestPending, fresh.Status)

	requireKind(t, f.svc.Unfriend(ctx, a, a), apperr.BadRequest)
}

func TestUnfriend_AfterRejectedHistory(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	a, b := f.id(0), f.id(1)

	// 被拒绝后过了冷却期重新发送并被接受，解除后可以立即重新发送
	req, err := f.svc.SendFriendRequest(ctx, a, raw(b), "hi")
	require.NoError(t, err)
	_, err = f.svc.RejectFriendRequest(ctx, b, req.ID)
	require.NoError(t, err)
	f.clock.Advance(8 * 24 * time.Hour)
	_, err = f.svc.SendFriendRequest(ctx, a, raw(b), "hi again")
	require.NoError(t, err)
	_, err = f.svc.AcceptFriendRequest(ctx, b, req.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Unfriend(ctx, a, b))
	_, err = f.svc.SendFriendRequest(ctx, a, raw(b), "fresh start")
	require.NoError(t, err)
}

func TestDeleteFriendRequest(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	req, err := f.svc.SendFriendRequest(ctx, f.id(0), raw(f.id(1)), "hi")
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteFriendRequest(ctx, req.ID))
	requireKind(t, f.svc.DeleteFriendRequest(ctx, req.ID), apperr.NotFound)
}

func TestListings(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	a, b, c, d, e := f.id(0), f.id(1), f.id(2), f.id(3), f.id(4)

	// a 发给 b（待处理）、c（被拒绝）；d 发给 a（待处理）；a 与 e 是好友
	toB, err := f.svc.SendFriendRequest(ctx, a, raw(b), "to b")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	toC, err := f.svc.SendFriendRequest(ctx, a, raw(c), "to c")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.svc.RejectFriendRequest(ctx, c, toC.ID)
	require.NoError(t, err)
	fromD, err := f.svc.SendFriendRequest(ctx, d, raw(a), "from d")
	require.NoError(t, err)
	toE, err := f.svc.SendFriendRequest(ctx, a, raw(e), "to e")
	require.NoError(t, err)
	_, err = f.svc.AcceptFriendRequest(ctx, e, toE.ID)
	require.NoError(t, err)

	incoming, err := f.svc.GetFriendRequests(ctx, a)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, fromD.ID, incoming[0].ID)
	assert.Equal(t, f.users[3].Name, incoming[0].SenderName)

	sent, err := f.svc.GetSentFriendRequests(ctx, a)
	require.NoError(t, err)
	require.Len(t, sent, 2, "accepted requests are not listed")
	assert.Equal(t, toC.ID, sent[0].ID, "most recent state change first")
	assert.Equal(t, string(model.FriendRequestRejected), sent[0].Status)
	require.NotNil(t, sent[0].RemainingDays)
	assert.Equal(t, 7, *sent[0].RemainingDays)
	assert.Equal(t, toB.ID, sent[1].ID)
	assert.Nil(t, sent[1].RemainingDays)
	assert.Equal(t, f.users[1].Name, sent[1].ReceiverName)

	status, err := f.svc.GetFriendshipStatus(ctx, b, a)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, status.Status)
	assert.Equal(t, a, status.SenderID)
	assert.Equal(t, toB.ID, status.RequestID)

	status, err = f.svc.GetFriendshipStatus(ctx, b, c)
	require.NoError(t, err)
	assert.Equal(t, StatusNotFriend, status.Status)
}

func TestGetFriends_ExcludesBlockedEitherDirection(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	a, b, c, d := f.id(0), f.id(1), f.id(2), f.id(3)

	for _, peer := range []uint{b, c, d} {
		req, err := f.svc.SendFriendRequest(ctx, a, raw(peer), "hi")
		require.NoError(t, err)
		_, err = f.svc.AcceptFriendRequest(ctx, peer, req.ID)
		require.NoError(t, err)
	}

	blocks := repository.NewBlockRepository(f.db)
	require.NoError(t, blocks.Block(ctx, a, b))
	require.NoError(t, blocks.Block(ctx, c, a))

	friends, err := f.svc.GetFriends(ctx, a)
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, d, friends[0].UserID)
	assert.Equal(t, f.users[3].Name, friends[0].Name)
	assert.Equal(t, f.users[3].Avatar, friends[0].Avatar)

	// d 的视角：a 不受 a 与其他人之间屏蔽的影响
	friends, err = f.svc.GetFriends(ctx, d)
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, a, friends[0].UserID)
}

func newQuotaFixture(t *testing.T, userCount int) *fixture {
	t.Helper()
	rdb, _ := testutil.NewRedis(t)

	// 先建好数据库再挂上限额（解析器需要用户仓储）
	f := newFixture(t, userCount)
	free := int64(5)
	cfg := config.ThrottleConfig{
		Window:      24 * time.Hour,
		DefaultTier: "free",
		Tiers: map[string]map[string]*int64{
			"free": {FeatureFriendRequest: &free},
			"vip":  {FeatureFriendRequest: nil},
		},
	}
	WithQuota(Quota{
		Throttle: throttle.New(rdb),
		Limits:   membership.NewResolver(repository.NewUserRepository(f.db), cfg),
		Window:   cfg.Window,
	})(f.svc)
	return f
}

func TestSendFriendRequest_FreeTierDailyCap(t *testing.T) {
	f := newQuotaFixture(t, 7)
	ctx := context.Background()
	sender := f.id(0)

	for i := 1; i <= 5; i++ {
		_, err := f.svc.SendFriendRequest(ctx, sender, raw(f.id(i)), "hi")
		require.NoError(t, err, "request %d", i)
	}

	_, err := f.svc.SendFriendRequest(ctx, sender, raw(f.id(6)), "hi")
	appErr := requireKind(t, err, apperr.PaymentRequired)
	hours, ok := appErr.Details["remainingHours"].(int)
	require.True(t, ok)
	assert.Greater(t, hours, 0)
	assert.Contains(t, appErr.Message, "try again in")
	assert.Equal(t, int64(5), countRequests(t, f.db))
}

func TestSendFriendRequest_QuotaOnlyChargesNewRecords(t *testing.T) {
	f := newQuotaFixture(t, 7)
	ctx := context.Background()
	sender := f.id(0)

	first, err := f.svc.SendFriendRequest(ctx, sender, raw(f.id(1)), "hi")
	require.NoError(t, err)
	_, err = f.svc.RejectFriendRequest(ctx, f.id(1), first.ID)
	require.NoError(t, err)

	// 冲突不计数
	for i := 0; i < 3; i++ {
		_, err = f.svc.SendFriendRequest(ctx, sender, raw(f.id(1)), "again")
		requireKind(t, err, apperr.Conflict)
	}

	for i := 2; i <= 5; i++ {
		_, err := f.svc.SendFriendRequest(ctx, sender, raw(f.id(i)), "hi")
		require.NoError(t, err)
	}

	// 已用满5次，但冷却期结束后的重新发送不受限额约束
	f.clock.Advance(8 * 24 * time.Hour)
	resent, err := f.svc.SendFriendRequest(ctx, sender, raw(f.id(1)), "after cooldown")
	require.NoError(t, err)
	assert.Equal(t, first.ID, resent.ID)

	_, err = f.svc.SendFriendRequest(ctx, sender, raw(f.id(6)), "hi")
	requireKind(t, err, apperr.PaymentRequired)
}

func TestSendFriendRequest_UnthrottledTier(t *testing.T) {
	f := newQuotaFixture(t, 8)
	ctx := context.Background()
	sender := f.id(0)
	require.NoError(t, f.db.Model(&model.User{}).Where("id = ?", sender).Update("membership_tier", "vip").Error)

	for i := 1; i <= 7; i++ {
		_, err := f.svc.SendFriendRequest(ctx, sender, raw(f.id(i)), "hi")
		require.NoError(t, err)
	}
}

// racingStore 第一次 FindBetween 假装记录不存在，模拟并发首发请求时落后的一方
type racingStore struct {
	*GormStore
	once sync.Once
}

type racingLedger struct {
	RequestLedger
	store *racingStore
}

func (s *racingStore) Requests() RequestLedger {
	return &racingLedger{RequestLedger: s.GormStore.Requests(), store: s}
}

func (l *racingLedger) FindBetween(ctx context.Context, a, b uint) (*model.FriendRequest, error) {
	lie := false
	l.store.once.Do(func() { lie = true })
	if lie {
		return nil, repository.ErrNotFound
	}
	return l.RequestLedger.FindBetween(ctx, a, b)
}

func TestSendFriendRequest_LostInsertRaceIsRetried(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	a, b := f.id(0), f.id(1)

	// 对方已经抢先写入
	winner, err := f.svc.SendFriendRequest(ctx, b, raw(a), "first")
	require.NoError(t, err)
	f.notifier.next(t)

	rdb, _ := testutil.NewRedis(t)
	th := throttle.New(rdb)
	free := int64(5)
	cfg := config.ThrottleConfig{
		Window:      24 * time.Hour,
		DefaultTier: "free",
		Tiers:       map[string]map[string]*int64{"free": {FeatureFriendRequest: &free}},
	}

	racing := NewConnectionService(
		&racingStore{GormStore: NewConnectionStore(f.db)},
		repository.NewUserRepository(f.db),
		repository.NewBlockRepository(f.db),
		f.notifier,
		WithClock(f.clock.Now),
		WithQuota(Quota{Throttle: th, Limits: membership.NewResolver(repository.NewUserRepository(f.db), cfg), Window: cfg.Window}),
	)

	_, err = racing.SendFriendRequest(ctx, a, raw(b), "second")
	appErr := requireKind(t, err, apperr.Conflict)
	assert.Equal(t, winner.ID, appErr.Details["requestId"])
	assert.Equal(t, int64(1), countRequests(t, f.db))

	used, err := th.Count(ctx, a, FeatureFriendRequest)
	require.NoError(t, err)
	assert.Zero(t, used, "quota refunded when no record was created")
}

// failingCreateStore 新建请求时返回存储错误
type failingCreateStore struct {
	*GormStore
}

type failingCreateLedger struct {
	RequestLedger
}

func (s *failingCreateStore) Requests() RequestLedger {
	return &failingCreateLedger{RequestLedger: s.GormStore.Requests()}
}

func (l *failingCreateLedger) Create(context.Context, *model.FriendRequest) error {
	return errors.New("connection reset by peer")
}

func TestSendFriendRequest_StoreFailureRefundsQuota(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	a, b := f.id(0), f.id(1)

	rdb, _ := testutil.NewRedis(t)
	th := throttle.New(rdb)
	free := int64(5)
	cfg := config.ThrottleConfig{
		Window:      24 * time.Hour,
		DefaultTier: "free",
		Tiers:       map[string]map[string]*int64{"free": {FeatureFriendRequest: &free}},
	}

	svc := NewConnectionService(
		&failingCreateStore{GormStore: NewConnectionStore(f.db)},
		repository.NewUserRepository(f.db),
		repository.NewBlockRepository(f.db),
		f.notifier,
		WithClock(f.clock.Now),
		WithQuota(Quota{Throttle: th, Limits: membership.NewResolver(repository.NewUserRepository(f.db), cfg), Window: cfg.Window}),
	)

	for i := 0; i < 3; i++ {
		_, err := svc.SendFriendRequest(ctx, a, raw(b), "hi")
		requireKind(t, err, apperr.ServerError)
	}

	used, err := th.Count(ctx, a, FeatureFriendRequest)
	require.NoError(t, err)
	assert.Zero(t, used)
	assert.Zero(t, countRequests(t, f.db))
}

func TestSendFriendRequest_ConcurrentFirstRequests(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	a, b := f.id(0), f.id(1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = f.svc.SendFriendRequest(ctx, a, raw(b), "from a")
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = f.svc.SendFriendRequest(ctx, b, raw(a), "from b")
	}()
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		requireKind(t, err, apperr.Conflict)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(1), countRequests(t, f.db))
}

type failingNotifier struct{ calls chan struct{} }

func (n *failingNotifier) SendPushToUser(context.Context, uint, Push) error {
	n.calls <- struct{}{}
	return errors.New("push gateway down")
}

func TestPushFailuresDoNotAffectCaller(t *testing.T) {
	db := testutil.NewDB(t)
	users := testutil.CreateUsers(t, db, 3, "")
	ctx := context.Background()

	failing := &failingNotifier{calls: make(chan struct{}, 1)}
	svc := NewConnectionService(NewConnectionStore(db), repository.NewUserRepository(db), repository.NewBlockRepository(db), failing)
	_, err := svc.SendFriendRequest(ctx, users[0].ID, raw(users[1].ID), "hi")
	require.NoError(t, err)
	select {
	case <-failing.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("notifier was not called")
	}

	panicking := &recordingNotifier{panic: true}
	svc = NewConnectionService(NewConnectionStore(db), repository.NewUserRepository(db), repository.NewBlockRepository(db), panicking)
	_, err = svc.SendFriendRequest(ctx, users[0].ID, raw(users[2].ID), "hi")
	require.NoError(t, err)
	// 给推送协程时间执行，panic 不应导致测试进程崩溃
	time.Sleep(50 * time.Millisecond)
}

func TestStoreErrorsBecomeServerError(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	sqlDB, err := f.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = f.svc.GetFriends(ctx, f.id(0))
	appErr := requireKind(t, err, apperr.ServerError)
	assert.NotEmpty(t, appErr.Message)
	assert.NotNil(t, appErr.Unwrap())
}

type fakeSender struct {
	userID uint
	msg    []byte
}

func (s *fakeSender) SendToUser(_ context.Context, userID uint, msg []byte) error {
	s.userID, s.msg = userID, msg
	return nil
}

func TestWebSocketNotifier(t *testing.T) {
	sender := &fakeSender{}
	n := NewWebSocketNotifier(sender)

	require.NoError(t, n.SendPushToUser(context.Background(), 3, Push{Title: "t", Body: "b", Data: map[string]string{"k": "v"}}))
	assert.Equal(t, uint(3), sender.userID)
	assert.Contains(t, string(sender.msg), `"type":"push"`)
	assert.Contains(t, string(sender.msg), `"data":{"k":"v"}`)
}
