package cel

// ExpressionExamples are rule expressions accepted by the evaluator.
var ExpressionExamples = map[string]string{
	"quiet_hours_marketing": `do_not_disturb && source == "marketing"`,
	"opted_out_channel":     `opted_out`,
	"promo_flood":           `event_type == "promo" && recent_count_1h >= 3`,
	"burst":                 `recent_count_window >= 5 && priority in ["low", "medium"]`,
	"recently_notified":     `minutes_since_last_sent >= 0 && minutes_since_last_sent < 2`,
	"metadata_flag":         `has(metadata.vip) && metadata.vip == true`,
	"message_keyword":       `message.lowerAscii().contains("password")`,
	"security_event":        `event_type.startsWith("account_") && priority == "critical"`,
	"channel_pressure":      `channel == "sms" && channel_count_1h > 1`,
}
