package dvparser

import (
	"fmt"
	"time"
)

// extractDateBits decodes the 2-byte packed date format used by VIF
// type G (and as the date half of type F date-times):
//
//	hi byte: YYYY MMMM   (high year bits in top nibble, month in low nibble)
//	lo byte: YYY DDDDD   (low year bits in top 3 bits, day in low 5 bits)
func extractDateBits(hi, lo byte) (day, month, year int, ok bool) {
	day = int(lo & 0x1F)
	year1 := int((lo & 0xE0) >> 5)
	month = int(hi & 0x0F)
	year2 := int((hi & 0xF0) >> 1)
	year = 2000 + year1 + year2
	return day, month, year, month <= 12
}

func extractTimeBits(hi, lo byte) (hour, minute int, ok bool) {
	minute = int(lo & 0x3F)
	hour = int(hi & 0x1F)
	return hour, minute, minute <= 59 && hour <= 23
}

// ExtractDate decodes e as a type-G 2-byte date, returning a UTC
// time.Time at midnight on the encoded day.
func ExtractDate(e DVEntry) (time.Time, error) {
	if len(e.Value) != 2 {
		return time.Time{}, fmt.Errorf("dvparser: date record must be 2 bytes, got %d", len(e.Value))
	}
	day, month, year, ok := extractDateBits(e.Value[1], e.Value[0])
	if !ok {
		return time.Time{}, fmt.Errorf("dvparser: invalid date bits (month=%d)", month)
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
}

// ExtractDateTime decodes e as a type-F 4-byte date-time (minute/hour
// packed with the day/month/year above).
func ExtractDateTime(e DVEntry) (time.Time, error) {
	if len(e.Value) != 4 {
		return time.Time{}, fmt.Errorf("dvparser: datetime record must be 4 bytes, got %d", len(e.Value))
	}
	day, month, year, ok := extractDateBits(e.Value[3], e.Value[2])
	if !ok {
		return time.Time{}, fmt.Errorf("dvparser: invalid date bits (month=%d)", month)
	}
	hour, minute, ok := extractTimeBits(e.Value[1], e.Value[0])
	if !ok {
		return time.Time{}, fmt.Errorf("dvparser: invalid time bits (hour=%d minute=%d)", hour, minute)
	}
	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC), nil
}
