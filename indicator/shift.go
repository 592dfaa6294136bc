package indicator

import "github.com/bandchart/bandchart/model"

// Shift 把布林带整体平移 offset 根K线：下标 i 的值移动到 i+offset。
// 每个输出点的时间戳都取目标位置自己的时间戳，所以平移后仍然和K线对齐；
// 没有来源的位置（offset>0 时的头部，offset<0 时的尾部）三条线都没有值。
func Shift(points []model.BandPoint, offset int) []model.BandPoint {
	if offset == 0 {
		return points
	}

	out := make([]model.BandPoint, len(points))
	for i := range points {
		out[i] = model.BandPoint{Timestamp: points[i].Timestamp}
	}

	for i, point := range points {
		j := i + offset
		if j < 0 || j >= len(points) {
			continue
		}
		out[j].Basis = point.Basis
		out[j].Upper = point.Upper
		out[j].Lower = point.Lower
	}

	return out
}
