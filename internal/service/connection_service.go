package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"social-connect/internal/cooldown"
	"social-connect/internal/model"
	"social-connect/internal/repository"
	"social-connect/pkg/apperr"
	"social-connect/pkg/logger"
	"social-connect/pkg/metrics"

	"go.uber.org/zap"
)

const (
	// FeatureFriendRequest 好友请求的限额功能名
	FeatureFriendRequest = "friend_request"

	maxSendAttempts    = 3
	defaultPushTimeout = 5 * time.Second
)

// errLostRace 并发修改导致本次写入未生效，需要重新读取后再判断
var errLostRace = errors.New("concurrent modification")

// UserDirectory 用户查询
type UserDirectory interface {
	Exists(ctx context.Context, id uint) (bool, error)
	FindByID(ctx context.Context, id uint) (*model.User, error)
	FindByIDs(ctx context.Context, ids []uint) ([]model.User, error)
}

// BlockList 屏蔽关系查询（双向）
type BlockList interface {
	BlockedIDsOf(ctx context.Context, userID uint) (map[uint]struct{}, error)
}

// Push 推送内容
type Push struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// PushNotifier 推送通知，尽力而为
type PushNotifier interface {
	SendPushToUser(ctx context.Context, userID uint, push Push) error
}

// RateThrottle 功能使用计数
type RateThrottle interface {
	CheckAndIncrement(ctx context.Context, userID uint, feature string, limit int64, ttl time.Duration) (int64, error)
	Refund(ctx context.Context, userID uint, feature string) (int64, error)
}

// LimitResolver 解析用户在某功能上的上限，limited 为 false 表示不限
type LimitResolver interface {
	Limit(ctx context.Context, userID uint, feature string) (limit int64, limited bool, err error)
}

// Quota 好友请求限额
type Quota struct {
	Throttle RateThrottle
	Limits   LimitResolver
	Window   time.Duration
}

// Option ConnectionService配置项
type Option func(*ConnectionService)

// WithQuota 启用会员限额
func WithQuota(q Quota) Option {
	return func(s *ConnectionService) { s.quota = &q }
}

// WithClock 替换时间来源
func WithClock(now func() time.Time) Option {
	return func(s *ConnectionService) { s.now = now }
}

// WithPushTimeout 设置单次推送的超时时间
func WithPushTimeout(d time.Duration) Option {
	return func(s *ConnectionService) { s.pushTimeout = d }
}

// ConnectionService 好友关系服务：好友请求状态机与好友关系
// 无状态，启动时创建一次，由各请求goroutine共享
type ConnectionService struct {
	store       ConnectionStore
	users       UserDirectory
	blocks      BlockList
	notifier    PushNotifier
	quota       *Quota
	now         func() time.Time
	pushTimeout time.Duration
}

// NewConnectionService 创建ConnectionService实例
func NewConnectionService(store ConnectionStore, users UserDirectory, blocks BlockList, notifier PushNotifier, opts ...Option) *ConnectionService {
	s := &ConnectionService{
		store:       store,
		users:       users,
		blocks:      blocks,
		notifier:    notifier,
		now:         func() time.Time { return time.Now().UTC() },
		pushTimeout: defaultPushTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// finish 在每个公开方法返回前调用：非业务错误统一转换为 ServerError，并记录指标
func finish(operation string, start time.Time, errp *error) {
	*errp = apperr.Normalize(*errp)
	metrics.ObserveOperation(operation, start, *errp)
}

// parseUserID 校验并解析用户ID
func parseUserID(raw string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil || id == 0 {
		return 0, apperr.Newf(apperr.BadRequest, "invalid user id %q", raw)
	}
	return uint(id), nil
}

// guardNotSelf 不能对自己操作
func guardNotSelf(userID, otherID uint, message string) error {
	if userID == otherID {
		return apperr.New(apperr.BadRequest, message)
	}
	return nil
}

// SendFriendRequest 发送好友请求
func (s *ConnectionService) SendFriendRequest(ctx context.Context, senderID uint, receiverIDRaw, message string) (req *model.FriendRequest, err error) {
	defer finish("send_friend_request", time.Now(), &err)

	receiverID, err := parseUserID(receiverIDRaw)
	if err != nil {
		return nil, err
	}
	if err = guardNotSelf(senderID, receiverID, "cannot send a friend request to yourself"); err != nil {
		return nil, err
	}

	exists, err := s.users.Exists(ctx, receiverID)
	if err != nil {
		return nil, fmt.Errorf("查询接收者失败: %w", err)
	}
	if !exists {
		return nil, apperr.New(apperr.NotFound, "receiver not found")
	}

	friends, err := s.store.Friendships().Exists(ctx, senderID, receiverID)
	if err != nil {
		return nil, fmt.Errorf("查询好友关系失败: %w", err)
	}
	if friends {
		return nil, apperr.New(apperr.Unprocessable, "you are already friends")
	}

	// 首次请求的并发由 pair_key 唯一索引串行化，失败方重新读取后再走一遍分支
	// 已扣减限额但最终没有新建记录时退还
	charged, created := false, false
	defer func() {
		if charged && !created {
			s.refundQuota(ctx, senderID)
		}
	}()

	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		req, created, err = s.sendOnce(ctx, senderID, receiverID, message, &charged)
		if errors.Is(err, repository.ErrDuplicate) || errors.Is(err, errLostRace) {
			logger.Warn("好友请求写入冲突，重试",
				zap.Uint("sender_id", senderID),
				zap.Uint("receiver_id", receiverID),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return nil, err
		}

		if created {
			s.dispatchPush(receiverID, Push{
				Title: "New friend request",
				Body:  "You have a new friend request",
				Data: map[string]string{
					"type":       "friend_request",
					"request_id": strconv.FormatUint(uint64(req.ID), 10),
					"sender_id":  strconv.FormatUint(uint64(senderID), 10),
				},
			})
		}
		return req, nil
	}

	return nil, fmt.Errorf("好友请求重试%d次仍冲突: %w", maxSendAttempts, err)
}

// sendOnce 读取该用户对的现有记录并按状态分支，created 表示新建了记录
func (s *ConnectionService) sendOnce(ctx context.Context, senderID, receiverID uint, message string, charged *bool) (*model.FriendRequest, bool, error) {
	existing, err := s.store.Requests().FindBetween(ctx, senderID, receiverID)
	if errors.Is(err, repository.ErrNotFound) {
		if !*charged {
			if err := s.chargeQuota(ctx, senderID); err != nil {
				return nil, false, err
			}
			*charged = true
		}

		req := &model.FriendRequest{
			SenderID:        senderID,
			ReceiverID:      receiverID,
			Message:         message,
			Status:          model.FriendRequestPending,
			LastRequestDate: s.now(),
		}
		if err := s.store.Requests().Create(ctx, req); err != nil {
			return nil, false, err
		}
		return req, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("查询好友请求失败: %w", err)
	}

	switch existing.Status {
	case model.FriendRequestPending:
		if existing.SenderID == senderID {
			return nil, false, apperr.New(apperr.Conflict, "friend request already sent")
		}
		return nil, false, apperr.New(apperr.Conflict, "this user already sent you a friend request, respond to it instead").
			With("requestId", existing.ID)

	case model.FriendRequestRejected:
		if existing.SenderID != senderID {
			// 拒绝方反过来发送：不复用也不新建记录
			return nil, false, apperr.New(apperr.Conflict, "you rejected this user's friend request, it cannot be reversed").
				With("requestId", existing.ID)
		}

		now := s.now()
		if !cooldown.CanResend(existing.LastRequestDate, now) {
			days := cooldown.RemainingDays(existing.LastRequestDate, now)
			return nil, false, apperr.Newf(apperr.Conflict, "friend request was rejected, you can resend it in %d days", days).
				With("remainingDays", days)
		}

		// 冷却期结束：原地改回 PENDING，不走限额
		if err := s.store.Requests().Resend(ctx, existing.ID, message, now); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, false, errLostRace
			}
			return nil, false, fmt.Errorf("重新发送好友请求失败: %w", err)
		}
		existing.Status = model.FriendRequestPending
		existing.Message = message
		existing.LastRequestDate = now
		return existing, false, nil

	case model.FriendRequestAccepted:
		logger.Error("好友请求已接受但好友关系不存在",
			zap.Uint("request_id", existing.ID),
			zap.Uint("sender_id", existing.SenderID),
			zap.Uint("receiver_id", existing.ReceiverID),
		)
		return nil, false, apperr.New(apperr.ServerError, "friend request is accepted but no friendship exists")

	default:
		return nil, false, apperr.Newf(apperr.ServerError, "unknown friend request status %q", existing.Status)
	}
}

// chargeQuota 新建请求前检查并扣减会员限额
func (s *ConnectionService) chargeQuota(ctx context.Context, senderID uint) error {
	if s.quota == nil {
		return nil
	}

	limit, limited, err := s.quota.Limits.Limit(ctx, senderID, FeatureFriendRequest)
	if err != nil {
		return err
	}
	if !limited {
		return nil
	}

	if _, err := s.quota.Throttle.CheckAndIncrement(ctx, senderID, FeatureFriendRequest, limit, s.quota.Window); err != nil {
		if apperr.Is(err, apperr.PaymentRequired) {
			metrics.ThrottleDenied(FeatureFriendRequest)
		}
		return err
	}
	return nil
}

// refundQuota 退还一次好友请求限额，失败只记录日志
func (s *ConnectionService) refundQuota(ctx context.Context, senderID uint) {
	if s.quota == nil {
		return
	}
	if _, err := s.quota.Throttle.Refund(context.WithoutCancel(ctx), senderID, FeatureFriendRequest); err != nil {
		logger.Warn("退还好友请求限额失败", zap.Uint("sender_id", senderID), zap.Error(err))
	}
}

// pendingAddressedTo 读取发给 userID 的待处理请求
func pendingAddressedTo(ctx context.Context, requests RequestLedger, userID, requestID uint) (*model.FriendRequest, error) {
	req, err := requests.GetByID(ctx, requestID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "friend request not found")
	}
	if err != nil {
		return nil, fmt.Errorf("查询好友请求失败: %w", err)
	}
	if req.Status != model.FriendRequestPending {
		return nil, apperr.New(apperr.NotFound, "friend request not found")
	}
	if req.ReceiverID != userID {
		return nil, apperr.New(apperr.Conflict, "friend request is not addressed to you")
	}
	return req, nil
}

// AcceptFriendRequest 接受好友请求：状态改为 ACCEPTED 并创建好友关系，两步在同一事务中
func (s *ConnectionService) AcceptFriendRequest(ctx context.Context, userID, requestID uint) (edge *model.Friendship, err error) {
	defer finish("accept_friend_request", time.Now(), &err)

	var req *model.FriendRequest
	err = s.store.Transaction(ctx, func(tx ConnectionStore) error {
		r, err := pendingAddressedTo(ctx, tx.Requests(), userID, requestID)
		if err != nil {
			return err
		}

		exists, err := tx.Friendships().Exists(ctx, r.SenderID, r.ReceiverID)
		if err != nil {
			return fmt.Errorf("查询好友关系失败: %w", err)
		}
		if exists {
			return apperr.New(apperr.Unprocessable, "you are already friends")
		}

		if err := tx.Requests().Transition(ctx, r.ID, model.FriendRequestPending, model.FriendRequestAccepted, s.now()); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.New(apperr.NotFound, "friend request not found")
			}
			return fmt.Errorf("更新好友请求失败: %w", err)
		}

		edge, err = tx.Friendships().Create(ctx, r.SenderID, r.ReceiverID)
		if errors.Is(err, repository.ErrDuplicate) {
			return apperr.New(apperr.Unprocessable, "you are already friends")
		}
		if err != nil {
			return fmt.Errorf("创建好友关系失败: %w", err)
		}

		req = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatchPush(req.SenderID, Push{
		Title: "Friend request accepted",
		Body:  "Your friend request was accepted",
		Data: map[string]string{
			"type":      "friend_accepted",
			"friend_id": strconv.FormatUint(uint64(userID), 10),
		},
	})

	return edge, nil
}

// RejectFriendRequest 拒绝好友请求，拒绝时间即冷却期起点
func (s *ConnectionService) RejectFriendRequest(ctx context.Context, userID, requestID uint) (req *model.FriendRequest, err error) {
	defer finish("reject_friend_request", time.Now(), &err)

	req, err = pendingAddressedTo(ctx, s.store.Requests(), userID, requestID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err = s.store.Requests().Transition(ctx, req.ID, model.FriendRequestPending, model.FriendRequestRejected, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.NotFound, "friend request not found")
		}
		return nil, fmt.Errorf("更新好友请求失败: %w", err)
	}

	req.Status = model.FriendRequestRejected
	req.LastRequestDate = now
	return req, nil
}

// DeleteFriendRequest 无条件删除请求，仅供维护使用
func (s *ConnectionService) DeleteFriendRequest(ctx context.Context, requestID uint) (err error) {
	defer finish("delete_friend_request", time.Now(), &err)

	err = s.store.Requests().Delete(ctx, requestID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.New(apperr.NotFound, "friend request not found")
	}
	return err
}

// Unfriend 解除好友关系，并删除两人之间的所有请求记录，之后可以重新发起请求
func (s *ConnectionService) Unfriend(ctx context.Context, userID, friendID uint) (err error) {
	defer finish("unfriend", time.Now(), &err)

	if err = guardNotSelf(userID, friendID, "cannot unfriend yourself"); err != nil {
		return err
	}

	return s.store.Transaction(ctx, func(tx ConnectionStore) error {
		deleted, err := tx.Friendships().DeleteBetween(ctx, userID, friendID)
		if err != nil {
			return fmt.Errorf("删除好友关系失败: %w", err)
		}
		if deleted == 0 {
			return apperr.New(apperr.NotFound, "friendship not found")
		}

		if _, err := tx.Requests().DeleteBetween(ctx, userID, friendID); err != nil {
			return fmt.Errorf("删除好友请求失败: %w", err)
		}
		return nil
	})
}

// GetFriendshipStatus 查询两个用户之间的关系状态
func (s *ConnectionService) GetFriendshipStatus(ctx context.Context, userID, targetID uint) (view *FriendshipStatusView, err error) {
	defer finish("get_friendship_status", time.Now(), &err)

	if err = guardNotSelf(userID, targetID, "cannot query friendship status with yourself"); err != nil {
		return nil, err
	}

	friends, err := s.store.Friendships().Exists(ctx, userID, targetID)
	if err != nil {
		return nil, fmt.Errorf("查询好友关系失败: %w", err)
	}
	if friends {
		return &FriendshipStatusView{Status: StatusSOAF}, nil
	}

	req, err := s.store.Requests().FindBetween(ctx, userID, targetID)
	if errors.Is(err, repository.ErrNotFound) {
		return &FriendshipStatusView{Status: StatusNotFriend}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询好友请求失败: %w", err)
	}

	view = &FriendshipStatusView{RequestID: req.ID, SenderID: req.SenderID}
	switch req.Status {
	case model.FriendRequestPending:
		view.Status = StatusPending
	case model.FriendRequestRejected:
		days := cooldown.RemainingDays(req.LastRequestDate, s.now())
		view.Status = StatusRejected
		view.RemainingDays = &days
	default:
		logger.Warn("好友请求已接受但好友关系不存在",
			zap.Uint("request_id", req.ID),
			zap.Uint("user_id", userID),
			zap.Uint("target_id", targetID),
		)
		return &FriendshipStatusView{Status: StatusNotFriend}, nil
	}
	return view, nil
}

// GetFriendRequests 获取收到的待处理好友请求，附带发送者名称
func (s *ConnectionService) GetFriendRequests(ctx context.Context, userID uint) (views []IncomingRequestView, err error) {
	defer finish("get_friend_requests", time.Now(), &err)

	requests, err := s.store.Requests().ListIncomingPending(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询好友请求失败: %w", err)
	}

	senderIDs := make([]uint, 0, len(requests))
	for _, r := range requests {
		senderIDs = append(senderIDs, r.SenderID)
	}
	users, err := s.usersByID(ctx, senderIDs)
	if err != nil {
		return nil, err
	}

	views = make([]IncomingRequestView, 0, len(requests))
	for _, r := range requests {
		sender := users[r.SenderID]
		views = append(views, IncomingRequestView{
			ID:              r.ID,
			SenderID:        r.SenderID,
			SenderName:      sender.Name,
			SenderAvatar:    sender.Avatar,
			Message:         r.Message,
			LastRequestDate: r.LastRequestDate,
		})
	}
	return views, nil
}

// GetSentFriendRequests 获取发出的待处理和被拒绝的请求，最近的在前
func (s *ConnectionService) GetSentFriendRequests(ctx context.Context, userID uint) (views []SentRequestView, err error) {
	defer finish("get_sent_friend_requests", time.Now(), &err)

	requests, err := s.store.Requests().ListSent(ctx, userID, model.FriendRequestPending, model.FriendRequestRejected)
	if err != nil {
		return nil, fmt.Errorf("查询好友请求失败: %w", err)
	}

	receiverIDs := make([]uint, 0, len(requests))
	for _, r := range requests {
		receiverIDs = append(receiverIDs, r.ReceiverID)
	}
	users, err := s.usersByID(ctx, receiverIDs)
	if err != nil {
		return nil, err
	}

	now := s.now()
	views = make([]SentRequestView, 0, len(requests))
	for _, r := range requests {
		view := SentRequestView{
			ID:              r.ID,
			ReceiverID:      r.ReceiverID,
			ReceiverName:    users[r.ReceiverID].Name,
			Message:         r.Message,
			Status:          string(r.Status),
			LastRequestDate: r.LastRequestDate,
		}
		if r.Status == model.FriendRequestRejected {
			days := cooldown.RemainingDays(r.LastRequestDate, now)
			view.RemainingDays = &days
		}
		views = append(views, view)
	}
	return views, nil
}

// GetFriends 获取好友列表，排除任一方向存在屏蔽关系的用户
func (s *ConnectionService) GetFriends(ctx context.Context, userID uint) (views []FriendView, err error) {
	defer finish("get_friends", time.Now(), &err)

	edges, err := s.store.Friendships().ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询好友关系失败: %w", err)
	}

	blocked, err := s.blocks.BlockedIDsOf(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询屏蔽列表失败: %w", err)
	}

	peerIDs := make([]uint, 0, len(edges))
	since := make(map[uint]time.Time, len(edges))
	for i := range edges {
		peer := edges[i].Peer(userID)
		if _, ok := blocked[peer]; ok {
			continue
		}
		peerIDs = append(peerIDs, peer)
		since[peer] = edges[i].CreatedAt
	}

	users, err := s.usersByID(ctx, peerIDs)
	if err != nil {
		return nil, err
	}

	views = make([]FriendView, 0, len(peerIDs))
	for _, id := range peerIDs {
		u, ok := users[id]
		if !ok {
			// 用户已注销
			continue
		}
		views = append(views, FriendView{
			UserID: id,
			Name:   u.Name,
			Avatar: u.Avatar,
			Bio:    u.Bio,
			Since:  since[id],
		})
	}
	return views, nil
}

// usersByID 批量查询用户并按ID索引
func (s *ConnectionService) usersByID(ctx context.Context, ids []uint) (map[uint]model.User, error) {
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	byID := make(map[uint]model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return byID, nil
}

// dispatchPush 异步推送，失败只记录日志，不影响调用方
func (s *ConnectionService) dispatchPush(userID uint, push Push) {
	if s.notifier == nil {
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				metrics.PushFailed()
				logger.Error("推送发生panic", zap.Uint("user_id", userID), zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.pushTimeout)
		defer cancel()

		if err := s.notifier.SendPushToUser(ctx, userID, push); err != nil {
			metrics.PushFailed()
			logger.Warn("推送失败", zap.Uint("user_id", userID), zap.String("title", push.Title), zap.Error(err))
		}
	}()
}
