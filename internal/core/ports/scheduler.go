package ports

import "time"

type SchedulerService interface {
	Start()
	Stop()
	// ScheduleAfterHeight runs task once, as soon as the chain height is
	// strictly above height. Scheduling under an existing id replaces the task.
	ScheduleAfterHeight(id string, height uint32, task func()) error
	Cancel(id string)
	// Every runs task periodically until the scheduler is stopped.
	Every(interval time.Duration, task func()) error
	Pending() int
}
