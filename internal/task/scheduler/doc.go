// Package scheduler fires named jobs from cron expressions or fixed intervals
// in a configured timezone. A job that is still running when its next trigger
// arrives is skipped for that trigger.
package scheduler
