// services/shopify_client.go
package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"bargain-arcade/models"
	"bargain-arcade/utils"

	"go.uber.org/zap"
)

const shopifyAPIVersion = "2024-01"

// DiscountCodeRequest describes the single-use code to create remotely.
type DiscountCodeRequest struct {
	Code      string
	Value     int // percent off
	ExpiresAt time.Time
}

// DiscountCodeResult carries the external platform identifiers back into
// the ledger.
type DiscountCodeResult struct {
	PriceRuleID    int64
	DiscountCodeID int64
}

// ShopifyClient creates discount codes through the commerce platform's
// admin API: one price rule per code, then the code under it.
type ShopifyClient struct {
	Client *http.Client
}

func NewShopifyClient() *ShopifyClient {
	return &ShopifyClient{Client: utils.HTTPClient}
}

// CreateDiscountCode provisions a single-use percentage code that expires at
// req.ExpiresAt. Failures must never crash the finish flow; callers catch
// the error and hand the entry to the retry worker.
func (sc *ShopifyClient) CreateDiscountCode(shop *models.Shop, req DiscountCodeRequest) (*DiscountCodeResult, error) {
	priceRule := map[string]interface{}{
		"price_rule": map[string]interface{}{
			"title":              req.Code,
			"target_type":        "line_item",
			"target_selection":   "all",
			"allocation_method":  "across",
			"value_type":         "percentage",
			"value":              fmt.Sprintf("-%d.0", req.Value),
			"customer_selection": "all",
			"usage_limit":        1,
			"once_per_customer":  true,
			"starts_at":          time.Now().UTC().Format(time.RFC3339),
			"ends_at":            req.ExpiresAt.UTC().Format(time.RFC3339),
		},
	}

	var ruleResp struct {
		PriceRule struct {
			ID int64 `json:"id"`
		} `json:"price_rule"`
	}
	if err := sc.post(shop, "price_rules.json", priceRule, &ruleResp); err != nil {
		return nil, fmt.Errorf("price rule creation failed: %w", err)
	}

	codeBody := map[string]interface{}{
		"discount_code": map[string]interface{}{
			"code": req.Code,
		},
	}
	var codeResp struct {
		DiscountCode struct {
			ID int64 `json:"id"`
		} `json:"discount_code"`
	}
	path := fmt.Sprintf("price_rules/%d/discount_codes.json", ruleResp.PriceRule.ID)
	if err := sc.post(shop, path, codeBody, &codeResp); err != nil {
		return nil, fmt.Errorf("discount code creation failed: %w", err)
	}

	return &DiscountCodeResult{
		PriceRuleID:    ruleResp.PriceRule.ID,
		DiscountCodeID: codeResp.DiscountCode.ID,
	}, nil
}

func (sc *ShopifyClient) post(shop *models.Shop, path string, body, out interface{}) error {
	url := fmt.Sprintf("https://%s/admin/api/%s/%s", shop.Domain, shopifyAPIVersion, path)

	jsonData, _ := json.Marshal(body)
	req, err := http.NewRequest("POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", shop.AccessToken)

	resp, err := sc.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		zap.L().Warn("shopify API error",
			zap.String("shop", shop.Domain),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", respBody))
		return fmt.Errorf("shopify returned %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode shopify response: %w", err)
		}
	}
	return nil
}
