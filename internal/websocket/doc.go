// Package websocket streams refresh progress to browser clients.
//
// A single Hub fans broadcast messages out to every connected client over
// buffered per-client channels; a client that stops draining its channel is
// disconnected rather than allowed to stall the others. Messages are
// events.Message envelopes, currently refresh:snapshot progress frames,
// system status and error notices.
//
// RefreshBroadcaster adapts the pipeline's progress callbacks into snapshot
// broadcasts. It rebroadcasts the whole run snapshot on every transition so
// late-joining clients render correct state from the next frame without
// replay.
//
// Wire a handler with ServeWS after upgrading the HTTP connection:
//
//	hub := websocket.NewHub(logger)
//	hub.Start()
//	conn, err := upgrader.Upgrade(w, r, nil)
//	if err != nil {
//	    return
//	}
//	websocket.ServeWS(hub, conn)
package websocket
