// Package supervisor keeps the agent's long-lived tasks running.
//
// Each task is built by a Factory and runs in its own goroutine until its
// context ends. A single monitoring loop checks liveness every poll
// interval and replaces any task that has returned or panicked with a
// freshly built instance. Restarts are immediate and unlimited: there is
// no backoff and no attempt cap, since the tasks are expected to run for
// the lifetime of the process.
//
// Example usage:
//
//	sup := supervisor.New(supervisor.Config{PollInterval: 5 * time.Second})
//	sup.Add("shadow", func() (supervisor.Task, error) {
//	    return agent.NewShadowTask(rt, cfg), nil
//	})
//	sup.Add("buttons", buttonFactory)
//
//	if err := sup.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package supervisor
