/*
Package health tracks agent liveness: consecutive TCP probe failures flip
an agent from ALIVE to LOST, feeding pkg/lifecycle's Sweeper with the
dwell-time clock it needs before evicting an agent's kernels.

It does not check kernel or container health — that is reported by the
agent itself over pkg/agentrpc as kernel status transitions, not polled
from the manager side.
*/
package health
