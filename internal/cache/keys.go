package cache

import "fmt"

// Key builders for the interview caches. Keeping them here makes it cheap to
// grep for every key shape the product writes.

func SessionListKey(resumeID uint) string { return fmt.Sprintf("interview:sessions:%d", resumeID) }

func ReportKey(sessionID uint) string { return fmt.Sprintf("interview:report:%d", sessionID) }

func StatsKey(ownerID uint) string { return fmt.Sprintf("interview:stats:%d", ownerID) }

// ResponseChannel is the pub/sub channel carrying transcript and evaluation
// events for one session's live consumers.
func ResponseChannel(sessionID uint) string { return fmt.Sprintf("session:%d:response", sessionID) }

// StatusChannel carries pipeline status updates for one session.
func StatusChannel(sessionID uint) string { return fmt.Sprintf("session:%d:status", sessionID) }

// AnswerAudioStream is the Redis stream spoken-answer chunks are queued on.
const AnswerAudioStream = "answers:audio"
