package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamStatusKey returns the Redis key holding the singleton global exam status.
func (r *CacheKeyStruct) ExamStatusKey() string {
	return "exam:status"
}

// ExamStatusChannel returns the Redis PubSub channel for global status updates.
// Every write to the status key is mirrored onto this channel so attached
// exam runtimes react without polling.
func (r *CacheKeyStruct) ExamStatusChannel() string {
	return "exam:status:events"
}

// ExamCountdownKey returns the Redis key holding the singleton countdown state.
func (r *CacheKeyStruct) ExamCountdownKey() string {
	return "exam:countdown"
}

// TrackAnswerKey returns the cache key for a track's answer key hash.
func (r *CacheKeyStruct) TrackAnswerKey(trackID string) string {
	return fmt.Sprintf("track:%s:key", trackID)
}

// StudentSessionKey returns the cache key for a student's login session.
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("login:%d", studentID)
}

// StudentActiveExamKey returns the cache key marking a student's attached exam.
func (r *CacheKeyStruct) StudentActiveExamKey(studentID int) string {
	return fmt.Sprintf("student:%d:active_exam", studentID)
}

var CacheKey = NewCacheKeyStruct()
