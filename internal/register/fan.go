// internal/register/fan.go
package register

// Register ranges of the airflow percentages. Each fan reaches its
// maximum speed well below 100%; supply tops out later than exhaust so
// the indoor pressure stays positive.
const (
	ExhaustMinPercent uint16 = 1
	ExhaustMaxPercent uint16 = 50
	SupplyMinPercent  uint16 = 1
	SupplyMaxPercent  uint16 = 60
)

// FanPercentages maps a user airflow of 0..100 onto the supply and
// exhaust percentage registers. Zero means both fans off.
func FanPercentages(user int) (supply, exhaust uint16) {
	if user <= 0 {
		return 0, 0
	}
	if user > 100 {
		user = 100
	}
	return scale(user, SupplyMinPercent, SupplyMaxPercent),
		scale(user, ExhaustMinPercent, ExhaustMaxPercent)
}

// UserPercent reverses FanPercentages using the exhaust register.
func UserPercent(exhaust uint16) int {
	if exhaust == 0 {
		return 0
	}
	if exhaust < ExhaustMinPercent {
		exhaust = ExhaustMinPercent
	}
	span := int(ExhaustMaxPercent - ExhaustMinPercent)
	user := 1 + int(exhaust-ExhaustMinPercent)*99/span
	if user > 100 {
		return 100
	}
	return user
}

// scale maps 1..100 linearly onto lo..hi, truncating.
func scale(user int, lo, hi uint16) uint16 {
	v := int(lo) + (user-1)*int(hi-lo)/99
	if v < int(lo) {
		return lo
	}
	if v > int(hi) {
		return hi
	}
	return uint16(v)
}
