package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/range-sensor/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Range Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.reading { color: green; font-weight: bold; }
.noecho { color: red; }
.pendingstate { color: orange; }
.idlestate { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Range Sensor{{if .Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<h2>Measurement</h2>
<table>
<tr><th>State</th><td class="{{if eq (printf "%s" .State) "IDLE"}}idlestate{{else}}pendingstate{{end}}">{{.State}}</td></tr>
{{if .Last}}
<tr><th>Last Distance</th><td id="distance" class="{{if .Last.NoEcho}}noecho{{else}}reading{{end}}">{{.Last.Text}}</td></tr>
<tr><th>Measured At</th><td id="measured-at">{{.Last.At.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
{{else}}
<tr><th>Last Distance</th><td id="distance" class="idlestate">no reading yet</td></tr>
{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Counts</h2>
<table>
<tr><th>Readings</th><td>{{.Counts.Readings}}</td></tr>
<tr><th>Timeouts</th><td>{{.Counts.Timeouts}}</td></tr>
<tr><th>Wrong Mode</th><td>{{.Counts.WrongMode}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Echo Timeout</th><td>{{.Config.EchoTimeoutMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Tick Clock</th><td>{{.Config.TickHz}}Hz</td></tr>
<tr><th>Pins</th><td>{{.Config.Chip}} trig={{.Config.PinTrigger}} echo={{.Config.PinEcho}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
{{if .Config.WSBroker}}
<script src="https://unpkg.com/mqtt/dist/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Config.WSBroker}}";
  var topic = "sensors/range/events";
  var dot = document.getElementById("live-dot");
  var distEl = document.getElementById("distance");
  var atEl = document.getElementById("measured-at");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  var client = mqtt.connect(broker, { reconnectPeriod: 5000 });

  client.on("connect", function() {
    setDot("ok", "live");
    client.subscribe(topic);
  });

  client.on("reconnect", function() {
    setDot("pending", "reconnecting");
  });

  client.on("offline", function() {
    setDot("err", "offline");
  });

  client.on("error", function() {
    setDot("err", "error");
  });

  client.on("message", function(t, payload) {
    try {
      var msg = JSON.parse(payload.toString());
      if (!msg.range) return;
      if (msg.range.event === "READING") {
        distEl.textContent = (msg.range.distance_mm / 10).toFixed(1) + " cm";
        distEl.className = "reading";
      } else {
        distEl.textContent = "no echo";
        distEl.className = "noecho";
      }
      if (atEl) atEl.textContent = msg.range.timestamp;
    } catch (e) {}
  });
})();
</script>
{{end}}
</body>
</html>
`

// lastView adapts the last reading for the template.
type lastView struct {
	At     time.Time
	NoEcho bool
	Text   string
}

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field,
	// and the last reading needs pre-formatting.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Last   *lastView
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	if snap.LastReading != nil {
		lv := &lastView{At: snap.LastReading.Time, NoEcho: true, Text: "no echo"}
		if d := snap.LastReading.Distance; d != nil {
			lv.NoEcho = false
			lv.Text = fmt.Sprintf("%d.%d cm (%d mm)", d.Millimeters()/10, d.Millimeters()%10, d.Millimeters())
		}
		data.Last = lv
	}
	indexTmpl.Execute(w, data)
}
