package taskname

const (
	// Payout pipeline tasks
	PayoutVerify  = "payout:verify"
	PayoutExecute = "payout:execute"
)
