// Package rtc runs the data-channel transport: every data channel a peer
// opens on a negotiated PeerConnection becomes one connection.
package rtc

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func WebRTCConfig(stunURLs []string) webrtc.Configuration {
	if len(stunURLs) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stunURLs}},
	}
}

// PeerConn owns one PeerConnection negotiated through an HTTP offer.
type PeerConn struct {
	pc     *webrtc.PeerConnection
	id     string
	logger zerolog.Logger
	cancel context.CancelFunc

	onDataChannel func(ctx context.Context, dc *webrtc.DataChannel)

	closeOnce sync.Once
}

func NewPeerConn(cfg webrtc.Configuration, id string) (*PeerConn, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &PeerConn{
		pc:     pc,
		id:     id,
		logger: log.With().Str("module", "rtc").Str("peer_id", id).Logger(),
	}, nil
}

// Start installs the state handlers. The PeerConnection is closed when ctx
// is done or when ICE fails.
func (c *PeerConn) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.logger.Info().Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateFailed ||
			s == webrtc.ICEConnectionStateClosed {
			cancel()
		}
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed {
			cancel()
		}
	})

	c.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		c.logger.Info().Str("label", dc.Label()).Msg("OnDataChannel received")
		if c.onDataChannel != nil {
			c.onDataChannel(ctx, dc)
		}
	})

	go func() {
		<-ctx.Done()
		c.Close()
	}()
	return nil
}

func (c *PeerConn) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	<-gatherComplete

	return c.pc.LocalDescription(), nil
}

func (c *PeerConn) Close() {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if err := c.pc.Close(); err != nil {
			c.logger.Error().Err(err).Msg("close error")
		} else {
			c.logger.Info().Msg("closed")
		}
	})
}

// OnDataChannel sets the callback for channels opened by the remote peer.
// ctx is done once the PeerConnection is gone.
func (c *PeerConn) OnDataChannel(fn func(ctx context.Context, dc *webrtc.DataChannel)) {
	c.onDataChannel = fn
}
