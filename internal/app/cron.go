package app

import (
	"time"

	pkgcron "github.com/folio-cms/folio/internal/pkg/cron"
)

// registerCronJobs registers the session and login-attempt sweeps.
func registerCronJobs(sched *pkgcron.Scheduler, a *App) error {
	for _, job := range []pkgcron.Job{
		{
			Name:        "sweep_sessions",
			Description: "Remove expired sessions from sessions.json",
			Every:       time.Hour,
			Run:         a.auth.SweepSessions,
		},
		{
			Name:        "sweep_login_attempts",
			Description: "Forget failed logins older than the lockout window",
			Every:       10 * time.Minute,
			Run:         a.auth.SweepAttempts,
		},
	} {
		if err := sched.Register(job); err != nil {
			return err
		}
	}
	return nil
}
