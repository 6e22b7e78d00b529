// Package rtc holds the WebRTC configuration handed out to clients. The
// relay never opens a peer connection itself; it only tells clients which
// STUN/TURN servers to negotiate through.
package rtc

import "github.com/pion/webrtc/v4"

const defaultSTUN = "stun:stun.l.google.com:19302"

// ICEServers maps configured URLs to the wire shape clients feed straight
// into their RTCPeerConnection constructor.
func ICEServers(urls []string) []webrtc.ICEServer {
	if len(urls) == 0 {
		urls = []string{defaultSTUN}
	}
	servers := make([]webrtc.ICEServer, 0, len(urls))
	for _, u := range urls {
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}
	return servers
}
