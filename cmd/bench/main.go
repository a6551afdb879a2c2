// bench drives a node binary through its line protocol and reports
// request/reply throughput. It plays the harness role: spawn the binary,
// send init, then a stream of broadcast requests, then a final read.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"time"
)

type body map[string]any

type envelope struct {
	Src  string `json:"src"`
	Dest string `json:"dest"`
	Body body   `json:"body"`
}

func main() {
	bin := flag.String("bin", "./broadcast", "node binary to drive")
	n := flag.Int("n", 5000, "broadcast requests")
	flag.Parse()

	cmd := exec.Command(*bin)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Fatal(err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.Fatal(err)
	}
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}

	in := bufio.NewWriter(stdin)
	out := bufio.NewScanner(stdout)
	out.Buffer(make([]byte, 0, 64*1024), 1<<20)

	send := func(msgID uint64, b body) {
		b["msg_id"] = msgID
		line, err := json.Marshal(envelope{Src: "c1", Dest: "n1", Body: b})
		if err != nil {
			log.Fatal(err)
		}
		line = append(line, '\n')
		if _, err := in.Write(line); err != nil {
			log.Fatal(err)
		}
		if err := in.Flush(); err != nil {
			log.Fatal(err)
		}
	}
	recv := func() envelope {
		if !out.Scan() {
			log.Fatalf("node closed its output: %v", out.Err())
		}
		var env envelope
		if err := json.Unmarshal(out.Bytes(), &env); err != nil {
			log.Fatal(err)
		}
		return env
	}

	send(1, body{"type": "init", "node_id": "n1", "node_ids": []string{"n1"}})
	if reply := recv(); reply.Body["type"] != "init_ok" {
		log.Fatalf("expected init_ok, got %v", reply.Body["type"])
	}

	start := time.Now()
	var msgID uint64 = 1
	for i := 0; i < *n; i++ {
		msgID++
		send(msgID, body{"type": "broadcast", "message": i})
		if reply := recv(); reply.Body["type"] != "broadcast_ok" {
			log.Fatalf("expected broadcast_ok, got %v", reply.Body["type"])
		}
	}
	dur := time.Since(start)

	msgID++
	send(msgID, body{"type": "read"})
	reply := recv()
	values, _ := reply.Body["messages"].([]any)

	stdin.Close()
	io.Copy(io.Discard, stdout)
	_ = cmd.Wait()

	fmt.Printf("Completed %d ops in %s (%.2f ops/s), node holds %d values\n",
		*n, dur, float64(*n)/dur.Seconds(), len(values))
}
