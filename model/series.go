// 定义model包
package model

import (
	"golang.org/x/exp/constraints"
)

// Series是一个时间序列数据的泛型切片
type Series[T constraints.Ordered] []T

// Window 返回以 end 结尾（包含 end）、长度最多为 size 的子序列。
// 例如 Series{1,2,3,4,5}.Window(3, 3) 返回 {2,3,4}。
func (s Series[T]) Window(end, size int) Series[T] {
	if end < 0 || size <= 0 || len(s) == 0 {
		return s[:0]
	}
	if end >= len(s) {
		end = len(s) - 1
	}
	start := end - size + 1
	if start < 0 {
		start = 0
	}
	return s[start : end+1]
}
