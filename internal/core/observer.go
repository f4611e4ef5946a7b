package core

// Observer is notified about dispatch outcomes. Implementations must not
// call back into the dispatcher for the same connection.
type Observer interface {
	// Dispatched is called after every Dispatch call, err is nil on success.
	Dispatched(ev Event, res Result, err error)
	// Closed is called once, when the connection reaches the Closed state.
	Closed(c *Connection, code int)
}

type nopObserver struct{}

func (nopObserver) Dispatched(Event, Result, error) {}
func (nopObserver) Closed(*Connection, int)         {}

// Observers fans notifications out in order.
type Observers []Observer

func (os Observers) Dispatched(ev Event, res Result, err error) {
	for _, o := range os {
		o.Dispatched(ev, res, err)
	}
}

func (os Observers) Closed(c *Connection, code int) {
	for _, o := range os {
		o.Closed(c, code)
	}
}
