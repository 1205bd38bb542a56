// Package influxdb records playback telemetry in InfluxDB v2.
//
// Each scene activation becomes a scene_activation point tagged with
// player, scene, phase, and cause, so a dashboard can chart what every
// player showed and why it advanced. Play/pause and override changes land
// in playback_state, ignored completion signals in signal_dropped.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.SetOnError(func(err error) { log.Error("influx write", "error", err) })
//
// Points are batched (batch_size, flush_interval); the write methods never
// block and never return errors.
package influxdb
