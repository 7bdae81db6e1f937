// Package mqtt exposes the agent as a Home Assistant device over MQTT.
//
// The publisher announces retained discovery configs for its sensors
// (uptime, version, model, rule count, check interval, tokens today,
// last reply latency, Discord link and pin states) and pushes their
// values periodically. Availability uses a birth message on connect
// and a will message for unexpected disconnects.
//
// It also subscribes to <base>/adc/<pin>/set and <base>/gpio/<pin>/set
// so an operator or a test rig can inject analog readings and input
// levels into the simulated board.
//
// Connection management, including reconnection, is delegated to
// Eclipse Paho v2's [autopaho] package.
package mqtt
