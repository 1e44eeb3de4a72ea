// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// The mlock tool acquires a cross-process lock inside a fastcollection
// backing file and holds it until interrupted. It is a downstream
// consumer of the core libraries, not part of them: spec.md explicitly
// scopes "distributed locks" out of the core (see cmd/ package doc in
// SPEC_FULL.md).
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristanetworks/fastcollection/arena"
	"github.com/aristanetworks/fastcollection/glog"
	"github.com/aristanetworks/fastcollection/ipcmutex"
	"github.com/aristanetworks/fastcollection/mlist"
	"github.com/cenkalti/backoff/v4"
)

var (
	fileFlag    = flag.String("file", "", "path to the fastcollection backing file")
	nameFlag    = flag.String("name", "default", "name of the lock to acquire")
	timeoutFlag = flag.Duration("timeout", 10*time.Second, "how long to retry before giving up")
	holdFlag    = flag.Duration("hold", 0, "release after this long instead of waiting for SIGINT/SIGTERM")
)

// holderTTLSeconds is how long the holder record in the mlist slot is
// trusted before it's considered stale. It is purely diagnostic: the
// ipcmutex word itself is never force-unlocked by a stale record, since
// doing so could split two processes between believing they hold the same
// lock.
const holderTTLSeconds = 300

func main() {
	flag.Parse()
	if *fileFlag == "" {
		fmt.Fprintln(os.Stderr, "mlock: -file is required")
		os.Exit(2)
	}

	log := &glog.Glog{}
	seg, err := arena.Open(*fileFlag, arena.Options{Logger: log})
	if err != nil {
		log.Fatal("mlock: opening segment: ", err)
	}
	defer seg.Close()

	lockOff, err := seg.FindOrConstruct("mlock:"+*nameFlag, ipcmutex.Size, ipcmutex.Init)
	if err != nil {
		log.Fatal("mlock: constructing lock word: ", err)
	}
	mu := ipcmutex.For(seg.Bytes(lockOff, ipcmutex.Size))

	holders, err := mlist.Open(seg, "mlock:"+*nameFlag+":holders", log)
	if err != nil {
		log.Fatal("mlock: opening holder record: ", err)
	}

	identity := []byte(fmt.Sprintf("%s:%d", hostname(), os.Getpid()))

	if prev, ok := holders.GetFirst(); ok {
		log.Infof("mlock: %q currently recorded as held by %s; waiting", *nameFlag, prev)
	}

	if !acquire(mu, *timeoutFlag) {
		log.Fatalf("mlock: could not acquire %q within %s", *nameFlag, *timeoutFlag)
	}
	defer mu.Unlock()

	if err := holders.Add(identity, holderTTLSeconds); err != nil {
		log.Errorf("mlock: recording holder identity: %v", err)
	}
	log.Infof("mlock: %q acquired by %s", *nameFlag, identity)

	release := make(chan struct{})
	if *holdFlag > 0 {
		go func() {
			time.Sleep(*holdFlag)
			close(release)
		}()
	} else {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sig
			close(release)
		}()
	}
	<-release

	holders.RemoveElement(identity)
	log.Infof("mlock: %q released by %s", *nameFlag, identity)
}

// acquire retries TryLock with exponential backoff until timeout elapses.
// ipcmutex.Mutex.TryLock already has its own bounded deadline per call;
// wrapping it in backoff.v4 gives a caller-visible retry/backoff policy
// layered on top, exactly as spec.md describes for "callers layer timeouts
// externally".
func acquire(mu ipcmutex.Mutex, timeout time.Duration) bool {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = timeout
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = time.Second
	bo.Reset()

	for {
		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return false
		}
		if mu.TryLock(wait) {
			return true
		}
		if bo.GetElapsedTime() >= timeout {
			return false
		}
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
