package scan

import "github.com/hugh/zerogap/internal/models"

// Effect is a one-shot side effect attached to a lifecycle edge.
type Effect int

const (
	EffectNotifyCompleted Effect = iota + 1
	EffectReportFailure
	EffectRefreshHistory
)

func (e Effect) String() string {
	switch e {
	case EffectNotifyCompleted:
		return "notify_completed"
	case EffectReportFailure:
		return "report_failure"
	case EffectRefreshHistory:
		return "refresh_history"
	default:
		return "unknown"
	}
}

type edge struct {
	from models.ScanStatus
	to   models.ScanStatus
}

// lifecycle lists the effects of every edge that has any. An edge that is
// not in the table, including a self-loop such as completed→completed, fires
// nothing.
var lifecycle = map[edge][]Effect{
	// The backend reports starting until its worker picks the scan up, so a
	// scan can finish without ever being seen as running. Those edges fire
	// the same effects as running→completed and running→failed.
	{models.ScanStatusStarting, models.ScanStatusCompleted}: {EffectNotifyCompleted, EffectRefreshHistory},
	{models.ScanStatusStarting, models.ScanStatusFailed}:    {EffectReportFailure, EffectRefreshHistory},
	{models.ScanStatusRunning, models.ScanStatusCompleted}:  {EffectNotifyCompleted, EffectRefreshHistory},
	{models.ScanStatusRunning, models.ScanStatusFailed}:     {EffectReportFailure, EffectRefreshHistory},
}

// EffectsFor returns the effects to fire when one scan moves from one status
// to another.
func EffectsFor(from, to models.ScanStatus) []Effect {
	return lifecycle[edge{from: from, to: to}]
}
