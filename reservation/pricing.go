package reservation

// Quote prices a rental at dailyRate for every day of the period, pickup and
// return day included. The VAT rate and currency are those of dailyRate.
func Quote(dailyRate Money, period BookingPeriod) Money {
	return dailyRate.Times(int64(period.Days()))
}
