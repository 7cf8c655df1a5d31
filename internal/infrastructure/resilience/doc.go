/*
Package resilience provides per-host circuit breakers for the download transport.

A breaker moves between three states:

	Closed --[failures]-> Open --[cooldown]-> Half-Open --[probes succeed]-> Closed
	                                             |
	                                         [failure]
	                                             v
	                                            Open

Caller cancellation is not counted as an upstream failure, so aborting a
navigation never trips the breaker for the host it was talking to.

# Usage

	breakers := resilience.NewGroup(resilience.Settings{
		Probes:   1,
		Cooldown: 30 * time.Second,
		ShouldTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})

	err := breakers.Get(u.Host).Do(func() error {
		resp, err = req.Execute(method, u.String())
		return err
	})
*/
package resilience
