// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// The mqueueworker tool drains task IDs from an mqueue.Queue and
// republishes each completed one to Kafka. It is a downstream consumer of
// the core libraries, not part of them: spec.md explicitly scopes "task
// queues" out of the core (see cmd/ package doc in SPEC_FULL.md).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Shopify/sarama"
	"github.com/aristanetworks/fastcollection/arena"
	"github.com/aristanetworks/fastcollection/glog"
	"github.com/aristanetworks/fastcollection/kafka"
	"github.com/aristanetworks/fastcollection/mqueue"
	"github.com/aristanetworks/fastcollection/sync/semaphore"
)

var (
	fileFlag        = flag.String("file", "", "path to the fastcollection backing file")
	queueFlag       = flag.String("queue", "tasks", "name of the mqueue.Queue to drain")
	brokersFlag     = flag.String("brokers", "", "comma-separated Kafka broker addresses")
	topicFlag       = flag.String("topic", "completed-tasks", "Kafka topic completed task IDs are published to")
	concurrencyFlag = flag.Int64("concurrency", 4, "maximum number of tasks processed concurrently")
	pollFlag        = flag.Duration("poll-interval", 200*time.Millisecond, "how long to sleep after finding the queue empty")
)

func main() {
	flag.Parse()
	if *fileFlag == "" || *brokersFlag == "" {
		fmt.Fprintln(os.Stderr, "mqueueworker: -file and -brokers are required")
		os.Exit(2)
	}

	log := &glog.Glog{}
	seg, err := arena.Open(*fileFlag, arena.Options{Logger: log})
	if err != nil {
		log.Fatal("mqueueworker: opening segment: ", err)
	}
	defer seg.Close()

	q, err := mqueue.Open(seg, *queueFlag, log)
	if err != nil {
		log.Fatal("mqueueworker: opening queue: ", err)
	}

	client, err := kafka.NewClient(strings.Split(*brokersFlag, ","))
	if err != nil {
		log.Fatal("mqueueworker: creating kafka client: ", err)
	}
	defer client.Close()

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		log.Fatal("mqueueworker: creating producer: ", err)
	}
	defer producer.Close()

	sem := semaphore.NewWeighted(*concurrencyFlag)

	stop := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		close(stop)
	}()

	run(stop, q, producer, sem, log)
}

func run(stop <-chan struct{}, q *mqueue.Queue, producer sarama.SyncProducer, sem *semaphore.Weighted, log *glog.Glog) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		task, ok := q.Poll()
		if !ok {
			time.Sleep(*pollFlag)
			continue
		}

		if err := sem.Acquire(context.Background(), 1); err != nil {
			log.Errorf("mqueueworker: acquiring worker slot: %v", err)
			continue
		}
		go func(task []byte) {
			defer sem.Release(1)
			publishCompletion(producer, task, log)
		}(task)
	}
}

func publishCompletion(producer sarama.SyncProducer, taskID []byte, log *glog.Glog) {
	msg := &sarama.ProducerMessage{
		Topic: *topicFlag,
		Key:   sarama.ByteEncoder(taskID),
		Value: sarama.ByteEncoder(taskID),
	}
	partition, offset, err := producer.SendMessage(msg)
	if err != nil {
		log.Errorf("mqueueworker: publishing completion for task %q: %v", taskID, err)
		return
	}
	log.Infof("mqueueworker: task %q completed, published to partition %d offset %d", taskID, partition, offset)
}
