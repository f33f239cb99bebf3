package main

// deliveryReport describes one fan-out.
type deliveryReport struct {
	delivered int
	failed    []deliveryFailure
}

type deliveryFailure struct {
	client *Client
	err    error
}

// broadcast writes payload to every client registered when it is called,
// in registration order. A failed write does not stop delivery to the
// rest; failures are returned for the caller to deregister.
func (m *ClientManager) broadcast(payload []byte) deliveryReport {
	var report deliveryReport
	if len(payload) == 0 {
		return report
	}
	for _, c := range m.clients.snapshot() {
		if err := c.socket.send(payload, m.writeTimeout); err != nil {
			m.sendFailed(c, err)
			report.failed = append(report.failed, deliveryFailure{client: c, err: err})
			continue
		}
		report.delivered++
	}
	return report
}

// sendFailed logs a per-recipient write failure. Unexpected failures are
// rate limited; the number of suppressed warnings rides on the next one.
func (m *ClientManager) sendFailed(c *Client, err error) {
	if isExpectedCloseError(err) {
		m.log.Debug("send failed", String("id", c.id), Err(err))
		return
	}
	if !m.sendWarn.Allow() {
		m.suppressed++
		return
	}
	fields := []Field{String("id", c.id), String("remote", c.remote), Err(err)}
	if m.suppressed > 0 {
		fields = append(fields, Int("suppressed", m.suppressed))
		m.suppressed = 0
	}
	m.log.Warn("send failed", fields...)
}
