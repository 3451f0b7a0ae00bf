package server

import (
	"net/http"
)

// TestPageHandler serves a diagnostic page that connects to the dashboard
// endpoint, shows every envelope it receives and can send extract_request
// and ping.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(testPageHTML))
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>TIMP Relay Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
            font-family: monospace;
        }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:disabled { background-color: #999; cursor: default; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>TIMP Relay Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
        <button id="extractButton" onclick="requestExtraction()" disabled>Request extraction</button>
        <button id="pingButton" onclick="sendPing()" disabled>Ping</button>
    </div>

    <div id="messages"></div>

    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');
        const statusDiv = document.getElementById('status');
        const connectButton = document.getElementById('connectButton');
        const actionButtons = [document.getElementById('extractButton'), document.getElementById('pingButton')];

        function addMessage(text) {
            const el = document.createElement('div');
            el.textContent = new Date().toISOString() + ' ' + text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
            actionButtons.forEach(b => b.disabled = !connected);
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws/dashboard');
            ws.onopen = () => updateStatus(true);
            ws.onmessage = (event) => addMessage(event.data);
            ws.onclose = () => { addMessage('connection closed'); updateStatus(false); ws = null; };
            ws.onerror = () => addMessage('connection error');
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function send(msg) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify(msg));
                addMessage('sent ' + msg.type);
            }
        }

        function requestExtraction() { send({ type: 'extract_request' }); }
        function sendPing() { send({ type: 'ping' }); }
    </script>
</body>
</html>`
