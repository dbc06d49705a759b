package stream

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes exposes the hub over a websocket: the current value is sent
// on connect, then every update, each as a JSON text frame.
func RegisterRoutes[T any](r fiber.Router, hub *Hub[T]) {
	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		initial, client := hub.Subscribe()
		defer client.Close()

		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := c.WriteJSON(initial); err != nil {
				return
			}
			for v := range client.Updates() {
				if err := c.WriteJSON(v); err != nil {
					return
				}
			}
			// hub shut down
			_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"))
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		client.Close()
		<-done
	}))
}
