// Package mqtt provides the broker transport for the ingest session.
//
// This package manages:
//   - Connection to the meter's MQTT broker (clean session, QoS 1 by default)
//   - A single-topic subscription delivered as an ingest.Stream
//   - Automatic reconnect with bounded backoff (1s to 30s by default)
//   - Restoring the subscription after every automatic reconnect
//
// # Delivery
//
// Messages are handed to the stream's channel from paho's router goroutine
// with ordered delivery enabled, so the channel preserves receipt order.
// The channel is bounded; a slow consumer stalls the router rather than
// dropping messages.
//
// # Security Considerations
//
//   - ssl://, tls://, mqtts:// and wss:// brokers get TLS 1.2 or newer
//   - Credentials are sent as MQTT username and password
//
// # Usage
//
//	dialer := mqtt.NewDialer(mqtt.OptionsFromConfig(cfg.MQTT))
//	dialer.SetLogger(logger)
//	stream, err := dialer.Dial(ctx, clientID, settings)
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//	for msg := range stream.Messages() {
//	    // ...
//	}
package mqtt
