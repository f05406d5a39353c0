package config

type JobStatus = string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetry      JobStatus = "retry"
)

type BroadcastStatus = string

const (
	BroadcastStatusPending   BroadcastStatus = "pending"
	BroadcastStatusScheduled BroadcastStatus = "scheduled"
	BroadcastStatusSending   BroadcastStatus = "sending"
	BroadcastStatusCompleted BroadcastStatus = "completed"
	BroadcastStatusCancelled BroadcastStatus = "cancelled"
	BroadcastStatusFailed    BroadcastStatus = "failed"
)

type RecipientStatus = string

const (
	RecipientStatusSent        RecipientStatus = "sent"
	RecipientStatusFailed      RecipientStatus = "failed"
	RecipientStatusBlocked     RecipientStatus = "blocked"
	RecipientStatusDeactivated RecipientStatus = "deactivated"
)

type ScheduleStatus = string

const (
	ScheduleStatusScheduled ScheduleStatus = "scheduled"
	ScheduleStatusCancelled ScheduleStatus = "cancelled"
	ScheduleStatusCompleted ScheduleStatus = "completed"
)

type RecurrencePattern = string

const (
	RecurrenceDaily   RecurrencePattern = "daily"
	RecurrenceWeekly  RecurrencePattern = "weekly"
	RecurrenceMonthly RecurrencePattern = "monthly"
	RecurrenceCustom  RecurrencePattern = "custom"
)

const (
	QueueBroadcasts = "broadcasts"
	QueueDefault    = "default"

	JobTypeBroadcastSend = "broadcast_send"
)

var (
	AllowedQueues   = []string{QueueDefault, QueueBroadcasts}
	AllowedJobTypes = []string{JobTypeBroadcastSend}
)

// DefaultLocale is the fallback when a recipient's locale has no
// content variant.
const DefaultLocale = "en"
