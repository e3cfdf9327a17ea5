// ABOUTME: User-facing and staff-facing reply texts for the intake dialogue.
// ABOUTME: Markdown-formatted strings assembled from state machine outcomes.

package intake

import (
	"fmt"

	"github.com/OGJRx/intake-gateway/internal/flow"
	"github.com/OGJRx/intake-gateway/internal/job"
	"github.com/OGJRx/intake-gateway/internal/progress"
)

const (
	replyStart = "🔧 *APPOINTMENT STARTED*\nPlease enter your *full name* to schedule."

	replyUsageHint = "🤖 Use /start to schedule a service, /quote for a price estimate, or /status to check on your vehicle."

	replyDesync = "⚠️ Your session is out of sync. Please send /start to begin again."

	replyRetryLater = "⚠️ We couldn't process that right now. Please try again in a moment."

	replyFinalized = "✅ Done! Your appointment has been recorded. We'll let you know when the work starts."

	replyQuote = "📝 A technician will contact you shortly with a quote."

	replyNoJobs = "❌ No active vehicles found for this chat. Use /start to schedule a service."
)

// rejectReply maps a validation failure to a corrective prompt for its stage.
func rejectReply(step flow.Step) string {
	switch step {
	case flow.StepAwaitName:
		return "⚠️ Name too short. Please enter your full name."
	case flow.StepAwaitVehicle:
		return "⚠️ That's too short. Please enter the *make, model and year*."
	default:
		return "⚠️ Please describe the problem in a bit more detail."
	}
}

// advanceReply prompts for the next stage after a successful turn.
func advanceReply(next flow.Step, patch map[string]string) string {
	switch next {
	case flow.StepAwaitVehicle:
		return fmt.Sprintf("✅ Hello %s. What *make, model and year* is the car?", patch[flow.FieldClientName])
	default:
		return "✅ Got it. *Describe the problem or service* you need."
	}
}

// statusReply formats the latest job record for the /status command.
func statusReply(rec *job.Record) string {
	notes := rec.Notes
	if notes == "" {
		notes = "Under review."
	}
	return fmt.Sprintf(
		"🚗 *YOUR VEHICLE STATUS*\n"+
			"*Order ID:* #%s\n"+
			"*Client:* %s\n"+
			"*Vehicle:* %s\n\n"+
			"*Status:* %s\n"+
			"*Progress:* %s\n"+
			"*Notes:* %s",
		rec.ID, rec.ClientName, rec.VehicleInfo,
		rec.Status.Display(), progress.Render(rec.Progress), notes,
	)
}

// staffLeadSummary formats the staff notification for a new quote lead.
func staffLeadSummary(rec *job.Record) string {
	return fmt.Sprintf("🚨 *NEW LEAD*\nClient: %s\nInfo: %s", rec.ClientName, rec.VehicleInfo)
}

// staffAppointmentSummary formats the staff notification for a new appointment.
func staffAppointmentSummary(rec *job.Record) string {
	return fmt.Sprintf("🆕 *NEW APPOINTMENT*\nClient: %s\nVehicle: %s\nIssue: %s",
		rec.ClientName, rec.VehicleInfo, rec.Notes)
}
