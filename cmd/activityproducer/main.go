package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/screenlogapp/screenlog/pkg/model"
)

// Reads an activity export and publishes each entry to the activities
// topic, for downstream consumers such as analytics pipelines.
func main() {
	fmt.Println("Creating a kafka producer")

	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": "localhost:9092",
	})
	if err != nil {
		log.Fatalf("cannot create producer: %v", err)
	}
	defer producer.Close()

	go func() {
		for e := range producer.Events() {
			switch ev := e.(type) {
			case *kafka.Message:
				if ev.TopicPartition.Error != nil {
					log.Printf("delivery failed: %v", ev.TopicPartition)
				}
			}
		}
	}()

	const fileName = "activitiesdata.json"
	fmt.Println("Reading activity entries from file " + fileName)

	entries, err := readActivityEntries(fileName)
	if err != nil {
		log.Fatalf("cannot read entries: %v", err)
	}

	const topic = "activities"
	if err := produceActivityEntries(topic, producer, entries); err != nil {
		log.Fatalf("cannot produce entries: %v", err)
	}

	remaining := producer.Flush(10_000)
	if remaining != 0 {
		log.Fatalf("still %d messages not delivered", remaining)
	}
	fmt.Println("all entries produced")
}

func readActivityEntries(fileName string) ([]model.ActivityEntry, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []model.ActivityEntry
	if err := json.NewDecoder(f).Decode(&entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func produceActivityEntries(topic string, producer *kafka.Producer, entries []model.ActivityEntry) error {
	for _, entry := range entries {
		payload, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		if err := producer.Produce(&kafka.Message{
			TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
			Key:            []byte(entry.OwnerID),
			Value:          payload,
		}, nil); err != nil {
			return err
		}
	}
	return nil
}
