package geometry

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	metersPerKm      = 1000.0
	sqMetersPerHa    = 10_000.0
	sqMetersPerSqKm  = 1_000_000.0
	defaultPrecision = 1
)

// 界面语言固定为希腊语；数字分组与小数点按 el 区域格式输出
var printer = message.NewPrinter(language.Greek)

// round2 保留两位小数
func round2(v float64) float64 { return math.Round(v*100) / 100 }

// FormatDistance 距离文本：取整后不足 1000 米显示米，否则按 precision 位小数显示千米
// 约束：先取整再选单位，999.6 m 显示为千米而非 "1.000 m"
func FormatDistance(meters float64, precision int) string {
	if precision < 0 {
		precision = defaultPrecision
	}
	if math.IsNaN(meters) || meters < 0 {
		meters = 0
	}
	if m := math.Round(meters); m < metersPerKm {
		return printer.Sprintf("%d m", int(m))
	}
	return printer.Sprintf(fmt.Sprintf("%%.%df km", precision), meters/metersPerKm)
}

// FormatArea 面积文本：< 1 公顷显示 m²，< 1 平方千米显示 ha，其余显示 km²；单位按取整后的值选择
func FormatArea(squareMeters float64) string {
	if math.IsNaN(squareMeters) || squareMeters < 0 {
		squareMeters = 0
	}
	if m := math.Round(squareMeters); m < sqMetersPerHa {
		return printer.Sprintf("%d m²", int(m))
	}
	if ha := round2(squareMeters / sqMetersPerHa); ha < sqMetersPerSqKm/sqMetersPerHa {
		return printer.Sprintf("%.2f ha", ha)
	}
	return printer.Sprintf("%.2f km²", squareMeters/sqMetersPerSqKm)
}
