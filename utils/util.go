package utils

import (
	"cmp"

	"github.com/samber/lo"
)

// Find 按ID查找数据
// 功能：ids为空时返回全部数据，否则按ids顺序返回找到的数据，找不到的ID记入failedIDs
// 参数：dataMap-ID到数据的映射，data-全部数据（保持原有顺序），ids-待查询的ID列表
func Find[K cmp.Ordered, T any](dataMap map[K]T, data []T, ids []K) (okData []T, failedIDs []K) {
	if len(ids) == 0 {
		return data, nil
	}
	okData = lo.FilterMap(ids, func(id K, _ int) (T, bool) {
		d, ok := dataMap[id]
		return d, ok
	})
	failedIDs = lo.Reject(ids, func(id K, _ int) bool {
		_, ok := dataMap[id]
		return ok
	})
	return
}
