// Package remote bridges a player onto MQTT.
//
// Inbound, it accepts commands on showloop/{player}/command and completion
// signals on showloop/{player}/complete. Outbound, it keeps a retained
// snapshot on showloop/{player}/state and publishes each transition on
// showloop/{player}/event/{kind}. Ticks are never published; consumers
// interpolate from remaining_ms.
package remote
