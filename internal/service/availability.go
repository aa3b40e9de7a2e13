package service

import (
	"context"
	"fmt"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/infra/repository/db"
	"github.com/RoyceAzure/lab/storefront/internal/pkg/util"
)

/*	可賣數量有兩套規則:

	顯示用: available = stock - 所有人的購物籃保留量 - 自己 session 的數量
	收單用: 同一個擁有者對該商品的總需求 (購物籃既有 + session 既有 + 本次請求) <= stock

	收單檢查只看自己的需求，自己的既有數量不會重複計算*/

// stockSatisfies 收單檢查
func stockSatisfies(stock uint, durableQty, sessionQty, requested int) bool {
	return durableQty+sessionQty+requested <= int(stock)
}

// resolveProduct 把商品鍵值解析成商品
// 鍵值格式錯誤視同商品不存在
func resolveProduct(ctx context.Context, store db.Store, productKey string) (*model.Product, error) {
	weight, unit, err := util.ParseWeightKey(productKey)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid product key %q", db.ErrProductNotFound, productKey)
	}
	return store.GetProductByIdentity(ctx, weight, unit)
}

// resolveProductForUpdate 解析並鎖定商品資料列
// 必須在交易內使用，先用身分查到 id 再鎖定重讀
func resolveProductForUpdate(ctx context.Context, store db.Store, productKey string) (*model.Product, error) {
	product, err := resolveProduct(ctx, store, productKey)
	if err != nil {
		return nil, err
	}
	return store.GetProductByIDForUpdate(ctx, product.ProductID)
}

// canonicalProductKey 把輸入鍵值正規化 ("16.0" -> "16")
// session 購物籃一律用正規化後的鍵值
func canonicalProductKey(productKey string) (string, error) {
	weight, unit, err := util.ParseWeightKey(productKey)
	if err != nil {
		return "", fmt.Errorf("%w: invalid product key %q", db.ErrProductNotFound, productKey)
	}
	return util.FormatWeightKey(weight, unit), nil
}
