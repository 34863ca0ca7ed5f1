package models

import "strconv"

// FormatValue 以最短形式输出数值，例如 140、38.7
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
