package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"social-connect/config"
	"social-connect/pkg/jwt"
)

// 好友请求并发压测：在 [from, to] 范围内的用户之间随机发送好友请求，统计状态码分布与延迟
// 用户与令牌由 tools/seed_users 生成；令牌在本地用同一份JWT配置签发

// -------------------- 统计 --------------------

type BenchStats struct {
	mu        sync.Mutex
	total     int
	errors    int
	byStatus  map[int]int
	latencies []time.Duration
}

func NewBenchStats() *BenchStats {
	return &BenchStats{byStatus: make(map[int]int)}
}

func (s *BenchStats) Add(status int, err error, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if err != nil {
		s.errors++
		return
	}
	s.byStatus[status]++
	s.latencies = append(s.latencies, latency)
}

func (s *BenchStats) percentile(p float64) time.Duration {
	if len(s.latencies) == 0 {
		return 0
	}
	idx := int(float64(len(s.latencies)-1) * p)
	return s.latencies[idx]
}

func (s *BenchStats) Report(took time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sort.Slice(s.latencies, func(i, j int) bool { return s.latencies[i] < s.latencies[j] })

	var sum time.Duration
	for _, l := range s.latencies {
		sum += l
	}

	fmt.Println("\n=== 压测结果 ===")
	fmt.Printf("耗时: %v\n", took)
	fmt.Printf("总请求: %d 网络错误: %d\n", s.total, s.errors)

	codes := make([]int, 0, len(s.byStatus))
	for code := range s.byStatus {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  HTTP %d (%s): %d\n", code, http.StatusText(code), s.byStatus[code])
	}

	if n := len(s.latencies); n > 0 {
		fmt.Printf("延迟 平均: %v p50: %v p95: %v p99: %v 最大: %v\n",
			sum/time.Duration(n), s.percentile(0.50), s.percentile(0.95), s.percentile(0.99), s.latencies[n-1])
	}
	if took > 0 {
		fmt.Printf("QPS: %.2f\n", float64(s.total-s.errors)/took.Seconds())
	}
	// 400/402/409 为业务拒绝，不计入失败
	if s.total > 0 {
		failed := s.errors + s.byStatus[http.StatusInternalServerError] + s.byStatus[http.StatusTooManyRequests]
		fmt.Printf("失败率(网络错误+5xx+429): %.2f%%\n", float64(failed)/float64(s.total)*100)
	}
}

// -------------------- 请求 --------------------

type tokenCache struct {
	mu     sync.Mutex
	svc    *jwt.JWTService
	tokens map[uint]string
}

func (c *tokenCache) get(userID uint) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.tokens[userID]; ok {
		return t, nil
	}
	t, err := c.svc.GenerateToken(userID, nil)
	if err != nil {
		return "", err
	}
	c.tokens[userID] = t
	return t, nil
}

func sendFriendRequest(client *http.Client, base, token string, receiverID uint) (int, error) {
	body, _ := json.Marshal(map[string]string{
		"receiver_id": strconv.FormatUint(uint64(receiverID), 10),
		"message":     "bench",
	})
	req, err := http.NewRequest(http.MethodPost, base+"/api/v1/friend-requests", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// randomPair 在 [from, to] 中取两个不同的用户
func randomPair(from, to uint) (uint, uint) {
	span := int(to - from + 1)
	a := from + uint(rand.IntN(span))
	b := from + uint(rand.IntN(span-1))
	if b >= a {
		b++
	}
	return a, b
}

func runBench(base string, tokens *tokenCache, from, to uint, concurrency, perWorker int) {
	fmt.Println("\n=== 好友请求压测开始 ===")
	fmt.Printf("目标: %s 用户: %d..%d 并发: %d 每协程请求: %d\n", base, from, to, concurrency, perWorker)

	stats := NewBenchStats()
	client := &http.Client{Timeout: 8 * time.Second}
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				sender, receiver := randomPair(from, to)
				token, err := tokens.get(sender)
				if err != nil {
					stats.Add(0, err, 0)
					continue
				}
				t0 := time.Now()
				code, err := sendFriendRequest(client, base, token, receiver)
				stats.Add(code, err, time.Since(t0))
			}
		}()
	}

	wg.Wait()
	stats.Report(time.Since(start))
}

// -------------------- 入口 --------------------

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "config file path (JWT settings must match the server)")
	base := flag.String("base", "http://localhost:8080", "server base URL")
	from := flag.Uint("from", 1, "first user id")
	to := flag.Uint("to", 10, "last user id")
	concurrency := flag.Int("c", 5, "concurrent workers")
	perWorker := flag.Int("n", 10, "requests per worker")
	flag.Parse()

	if *to <= *from {
		log.Fatalf("-to must be greater than -from")
	}

	cfg := config.LoadConfigFrom(*configPath)
	tokens := &tokenCache{svc: jwt.NewJWTService(cfg.JWT), tokens: make(map[uint]string)}

	fmt.Println("=== 好友关系服务压测 ===")
	fmt.Printf("开始时间: %s\n", time.Now().Format("2006-01-02 15:04:05"))

	runBench(*base, tokens, *from, *to, *concurrency, *perWorker)

	fmt.Println("\n=== 测试完成 ===")
}
