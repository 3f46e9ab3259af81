package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"
)

// 对同一笔订单并发发起修复，验证同一时刻只有一个修复真正执行
var httpClient *http.Client

func init() {
	// 优化 HTTP Client 配置
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxIdleConnsPerHost = 2000
	t.MaxConnsPerHost = 2000
	httpClient = &http.Client{
		Transport: t,
		Timeout:   10 * time.Second,
	}
}

type repairResponse struct {
	Code int `json:"code"`
	Data struct {
		RepairNo string `json:"repairNo"`
		Skipped  bool   `json:"skipped"`
	} `json:"data"`
}

type outcome struct {
	status   int
	code     int
	repairNo string
	err      error
}

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:8080", "server base url")
		token   = flag.String("token", "", "admin token, see cmd/token")
		orderNo = flag.String("order", "", "pending order to repair")
		action  = flag.String("action", "close_local", "success | close_local | close_gateway")
		total   = flag.Int("n", 200, "concurrent requests")
	)
	flag.Parse()
	if *token == "" || *orderNo == "" {
		fmt.Println("用法: stress_tool -token=<admin token> -order=<order_no> [-n=200] [-action=close_local]")
		return
	}

	fmt.Printf("开始压测：%d 个并发请求修复订单 %s (action=%s)...\n", *total, *orderNo, *action)

	body, _ := json.Marshal(map[string]string{"order_no": *orderNo, "action": *action})
	results := make([]outcome, *total)

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < *total; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = repair(*baseURL, *token, body)
		}(i)
	}
	wg.Wait()
	duration := time.Since(start)

	byStatus := map[int]int{}
	repairNos := map[string]struct{}{}
	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			continue
		}
		byStatus[r.status]++
		if r.repairNo != "" {
			repairNos[r.repairNo] = struct{}{}
		}
	}

	fmt.Println("--------------------------------------------------")
	fmt.Printf("压测结束，耗时: %v\n", duration)
	fmt.Printf("总请求数: %d, 网络错误: %d\n", *total, failed)
	fmt.Printf("QPS: %.2f\n", float64(*total)/duration.Seconds())
	statuses := make([]int, 0, len(byStatus))
	for s := range byStatus {
		statuses = append(statuses, s)
	}
	sort.Ints(statuses)
	for _, s := range statuses {
		fmt.Printf("HTTP %d: %d\n", s, byStatus[s])
	}
	fmt.Printf("执行修复: %d, 锁竞争跳过: %d\n", len(repairNos), byStatus[http.StatusAccepted])
	fmt.Println("--------------------------------------------------")
}

func repair(baseURL, token string, body []byte) outcome {
	req, err := http.NewRequest(http.MethodPost, baseURL+"/payment/repair", bytes.NewReader(body))
	if err != nil {
		return outcome{err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := httpClient.Do(req)
	if err != nil {
		return outcome{err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var r repairResponse
	_ = json.Unmarshal(raw, &r)
	return outcome{status: resp.StatusCode, code: r.Code, repairNo: r.Data.RepairNo}
}
