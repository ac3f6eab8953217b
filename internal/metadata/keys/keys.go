// Package keys builds and parses metadata keys.
//
// Layout:
//
//	/brokerstats/v1/topics/<topic>
//	/brokerstats/v1/groups/<group>/offsets/<topic>/<queueIdZ>
//
// queueIdZ is the queue id zero-padded to QueueWidth digits so a prefix
// listing returns queues in numeric order.
package keys

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// QueueWidth is the number of digits in an encoded queue id.
const QueueWidth = 10

// Key prefixes.
const (
	Prefix       = "/brokerstats/v1"
	TopicsPrefix = Prefix + "/topics"
	GroupsPrefix = Prefix + "/groups"
)

var (
	// ErrInvalidKey is returned when a key does not match the expected layout.
	ErrInvalidKey = errors.New("keys: invalid key")
	// ErrInvalidQueueID is returned for a negative queue id.
	ErrInvalidQueueID = errors.New("keys: queue id must be non-negative")
)

// EncodeQueueID zero-pads a queue id.
func EncodeQueueID(queueID int32) (string, error) {
	if queueID < 0 {
		return "", ErrInvalidQueueID
	}
	return fmt.Sprintf("%0*d", QueueWidth, queueID), nil
}

// TopicKeyPath returns the key holding a topic's configuration.
func TopicKeyPath(topic string) string {
	return TopicsPrefix + "/" + topic
}

// ParseTopicKey extracts the topic name from a topic key.
func ParseTopicKey(key string) (string, error) {
	prefix := TopicsPrefix + "/"
	if !strings.HasPrefix(key, prefix) {
		return "", ErrInvalidKey
	}
	name := key[len(prefix):]
	if name == "" || strings.Contains(name, "/") {
		return "", ErrInvalidKey
	}
	return name, nil
}

// OffsetKeyPath returns the key holding a group's committed offset for
// one queue of a topic.
func OffsetKeyPath(group, topic string, queueID int32) (string, error) {
	q, err := EncodeQueueID(queueID)
	if err != nil {
		return "", err
	}
	return GroupTopicOffsetsPrefix(group, topic) + q, nil
}

// GroupOffsetsPrefix returns the prefix for every offset of a group.
func GroupOffsetsPrefix(group string) string {
	return GroupsPrefix + "/" + group + "/offsets/"
}

// GroupTopicOffsetsPrefix returns the prefix for a group's offsets on one topic.
func GroupTopicOffsetsPrefix(group, topic string) string {
	return GroupOffsetsPrefix(group) + topic + "/"
}

// ParseOffsetKey splits an offset key into its parts.
func ParseOffsetKey(key string) (group, topic string, queueID int32, err error) {
	prefix := GroupsPrefix + "/"
	if !strings.HasPrefix(key, prefix) {
		return "", "", 0, ErrInvalidKey
	}
	rest := key[len(prefix):]

	idx := strings.Index(rest, "/offsets/")
	if idx <= 0 {
		return "", "", 0, ErrInvalidKey
	}
	group = rest[:idx]

	remaining := rest[idx+len("/offsets/"):]
	slash := strings.LastIndex(remaining, "/")
	if slash <= 0 || slash == len(remaining)-1 {
		return "", "", 0, ErrInvalidKey
	}
	topic = remaining[:slash]

	q, perr := strconv.ParseInt(remaining[slash+1:], 10, 32)
	if perr != nil || q < 0 {
		return "", "", 0, fmt.Errorf("%w: queue id %q", ErrInvalidKey, remaining[slash+1:])
	}
	return group, topic, int32(q), nil
}
