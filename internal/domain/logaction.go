package domain

// LogAction is a session-log action label. The canonical strings are what the
// platform UI renders, so they are part of the external contract.
type LogAction string

const (
	ActionEntry                LogAction = "Entry"
	ActionExit                 LogAction = "Exit"
	ActionOccupied             LogAction = "Occupied"
	ActionFree                 LogAction = "Free"
	ActionViolation            LogAction = "Violation"
	ActionReservationExpired   LogAction = "Reservation Expired"
	ActionUnreserved           LogAction = "Unreserved"
	ActionReservationRemaining LogAction = "Reservation Remaining"
	ActionMonthlyPass          LogAction = "Monthly Pass"
	ActionNotPaid              LogAction = "Not Paid"
	ActionPaid                 LogAction = "Paid"
	ActionNonBillable          LogAction = "Non Billable"
	ActionOverstay             LogAction = "Overstay"
	ActionOverstayAlertSent    LogAction = "Overstay Alert sent"
	ActionPaymentAlertSent     LogAction = "Payment Alert sent"
	ActionOverstayAlertClosed  LogAction = "Overstay Alert Closed"
	ActionPaymentAlertClosed   LogAction = "Payment Alert Closed"
	ActionPrivilegePermit      LogAction = "Privilege Permit"
	ActionViolationSent        LogAction = "Violation Sent"
	ActionValidPermit          LogAction = "Valid Permit"
	ActionPermitExpired        LogAction = "Permit Expired"
	ActionSystemClosed         LogAction = "System Closed"
	ActionViolationInactivated LogAction = "Violation inactivated"
)

// System-closed log descriptions.
const (
	DescSameLprEntry = "This session was automatically closed after another session was detected for the same vehicle."
	DescSameOccupied = "This session was automatically closed after a new vehicle session was detected for the same spot."
	DescForcedExit   = "This session was automatically closed for exceeding the maximum session duration configured for this parking lot."
	DescUnknownEvent = "This session was automatically closed due to an unexpected system event, such as a camera restart."
)

// LogActionMeta drives the two per-action behaviors the log writer needs:
// whether a repeat of the immediately preceding entry is dropped, and whether
// the remaining paid duration gets appended to the action label.
type LogActionMeta struct {
	SkipIfRepeated bool
	AppendDuration bool
}

var logActionMeta = map[LogAction]LogActionMeta{
	ActionNotPaid:              {SkipIfRepeated: true},
	ActionPermitExpired:        {SkipIfRepeated: true},
	ActionValidPermit:          {SkipIfRepeated: true},
	ActionUnreserved:           {SkipIfRepeated: true},
	ActionPaid:                 {AppendDuration: true},
	ActionReservationRemaining: {AppendDuration: true},
	ActionMonthlyPass:          {AppendDuration: true},
}

// MetaFor returns the metadata for an action. Unknown actions get the zero
// value, which means always append and never decorate.
func MetaFor(action LogAction) LogActionMeta {
	return logActionMeta[action]
}
