package tutorial

import (
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout formats timestamps embedded in message bodies
const TimestampLayout = "2006-01-02 15:04:05"

// Log levels, also used as routing keys
var Levels = []string{"info", "warn", "error"}

// Words of topic routing keys
var (
	Countries = []string{"cn", "us", "kr"}
	Persons   = []string{"ming", "hong", "li"}
)

// Timestamp formats t with TimestampLayout
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// HelloMessage returns the body sent to the hello queue
func HelloMessage(now time.Time) string {
	return "Hello World!" + Timestamp(now)
}

// TaskMessage returns the body of the i-th task
func TaskMessage(now time.Time, i int) string {
	return HelloMessage(now) + "----" + strconv.Itoa(i)
}

// LogMessage returns the body of the i-th broadcast
func LogMessage(now time.Time, i int) string {
	return Timestamp(now) + "---" + strconv.Itoa(i)
}

// LevelMessage returns the body of the i-th message routed by level
func LevelMessage(level string, now time.Time, i int) string {
	return level + "---" + LogMessage(now, i)
}

// TopicMessage returns the body of the i-th message published with a topic key
func TopicMessage(key string, now time.Time, i int) string {
	return LevelMessage(key, now, i)
}

// RandomLevel picks a random log level
func RandomLevel(r *rand.Rand) string {
	return Levels[r.Intn(len(Levels))]
}

// RandomTopicKey builds a random <country>.<person>.<level> routing key
func RandomTopicKey(r *rand.Rand) string {
	return strings.Join([]string{
		Countries[r.Intn(len(Countries))],
		Persons[r.Intn(len(Persons))],
		RandomLevel(r),
	}, ".")
}
