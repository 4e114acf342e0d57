package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// 压测目标：并发下单争抢有限库存，验证不会超卖
var (
	baseURL    = flag.String("base", "http://localhost:8080", "server base url")
	token      = flag.String("token", "", "bearer token of the test user")
	userID     = flag.String("user", "", "test user id")
	addressID  = flag.String("address", "", "test address id")
	productID  = flag.String("product", "", "product id to order")
	size       = flag.String("size", "M", "variant size")
	amount     = flag.Float64("amount", 799, "order amount")
	totalUsers = flag.Int("n", 1000, "concurrent order attempts")
	stock      = flag.Int("stock", 5, "expected available stock")
)

var httpClient *http.Client

func init() {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxIdleConnsPerHost = 2000
	t.MaxConnsPerHost = 2000
	httpClient = &http.Client{
		Transport: t,
		Timeout:   10 * time.Second,
	}
}

func main() {
	flag.Parse()
	if *token == "" || *userID == "" || *addressID == "" || *productID == "" {
		fmt.Println("usage: stress_tool -token <jwt> -user <id> -address <id> -product <id> [-size M -n 1000 -stock 5]")
		return
	}

	fmt.Printf("开始压测：%d 个并发下单抢 %d 件库存 (product: %s, size: %s)...\n",
		*totalUsers, *stock, *productID, *size)
	time.Sleep(1 * time.Second)

	var wg sync.WaitGroup
	successCount := 0
	stockFailCount := 0
	otherFailCount := 0
	var mu sync.Mutex

	start := time.Now()

	for i := 0; i < *totalUsers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, stockFail := placeOrder()
			mu.Lock()
			switch {
			case ok:
				successCount++
			case stockFail:
				stockFailCount++
			default:
				otherFailCount++
			}
			mu.Unlock()
		}()
	}

	wg.Wait()
	duration := time.Since(start)
	qps := float64(*totalUsers) / duration.Seconds()

	fmt.Println("--------------------------------------------------")
	fmt.Printf("压测结束，耗时: %v\n", duration)
	fmt.Printf("总请求数: %d\n", *totalUsers)
	fmt.Printf("QPS: %.2f\n", qps)
	fmt.Printf("下单成功: %d (预期: %d)\n", successCount, *stock)
	fmt.Printf("库存不足拒绝: %d\n", stockFailCount)
	fmt.Printf("其他失败: %d\n", otherFailCount)
	fmt.Println("--------------------------------------------------")

	if successCount > *stock {
		fmt.Println("!!! 超卖：成功数超过库存数，请检查库存扣减逻辑")
	}
}

// placeOrder 返回 (是否成功, 是否库存不足)
func placeOrder() (bool, bool) {
	payload := map[string]interface{}{
		"products": []map[string]interface{}{
			{"product": *productID, "quantity": 1, "size": *size},
		},
		"addressId":     *addressID,
		"amount":        *amount,
		"paymentMethod": "cod",
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequest(http.MethodPost,
		*baseURL+"/orders/create-order/"+*userID, bytes.NewReader(body))
	if err != nil {
		return false, false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+*token)

	resp, err := httpClient.Do(req)
	if err != nil {
		return false, false
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	var envelope struct {
		Code int `json:"code"`
	}
	_ = json.Unmarshal(data, &envelope)

	if resp.StatusCode == http.StatusCreated && envelope.Code == 0 {
		return true, false
	}
	// 30002: insufficient stock
	return false, envelope.Code == 30002
}
