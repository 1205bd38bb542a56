// Package mqtt connects a showloop player to an MQTT broker.
//
// MQTT is optional. When enabled, the player mirrors its playback state and
// events onto the broker and accepts commands and completion signals from
// it, so show-control systems and external content can drive the loop.
//
//	Player ↔ MQTT Broker ↔ Show control / content
//
// Topics are rooted at showloop/<player>/ (see Topics). The retained
// showloop/system/status topic carries online/offline presence, backed by a
// Last Will so a crashed wall shows as offline.
//
// Use TLS (mqtt.broker.tls) on shared networks; anonymous access is meant
// for local development only.
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Player.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{Player: cfg.Player.ID}
//	err = client.Subscribe(topics.Command(), 1, bridge.HandleCommand)
//	client.PublishJSON(topics.State(), snapshot, true)
package mqtt
