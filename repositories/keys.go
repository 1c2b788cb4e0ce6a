package repositories

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"market-live/domain"
)

// Badger key layout. Chronological keys embed a 19-digit zero-padded
// unix-nano so lexicographical order equals time order, with a trailing
// UUID as a collision disconnector for same-nanosecond writes.
//
//	chat:{chat_id}                      -> chatRecord (JSON)
//	direct:{user_lo}:{user_hi}          -> chat_id (direct-chat idempotency index)
//	member:{user_id}:{chat_id}          -> "" (membership index for cross-chat reads)
//	unread:{chat_id}:{user_id}          -> decimal counter
//	clear:{chat_id}:{user_id}           -> unix-nano visibility cutoff
//	msg:{chat_id}:{padded_ts}:{uuid}    -> messageRecord (JSON)
//	notif:{user_id}:{padded_ts}:{uuid}  -> notificationRecord (JSON)
//	user:{email}                        -> userRecord (JSON)

func chatKey(chatID domain.ChatID) []byte {
	return []byte("chat:" + chatID.String())
}

// directKey orders the pair so (A,B) and (B,A) resolve to the same index
// entry. That is what makes create_direct idempotent.
func directKey(userA, userB string) []byte {
	if userB < userA {
		userA, userB = userB, userA
	}
	return []byte("direct:" + userA + ":" + userB)
}

func memberPrefix(userID string) []byte {
	return []byte("member:" + userID + ":")
}

func memberKey(userID string, chatID domain.ChatID) []byte {
	return append(memberPrefix(userID), []byte(chatID.String())...)
}

func unreadKey(chatID domain.ChatID, userID string) []byte {
	return []byte("unread:" + chatID.String() + ":" + userID)
}

func clearKey(chatID domain.ChatID, userID string) []byte {
	return []byte("clear:" + chatID.String() + ":" + userID)
}

func messagePrefix(chatID domain.ChatID) []byte {
	return []byte("msg:" + chatID.String() + ":")
}

func messageKey(chatID domain.ChatID, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", chatID, at.UnixNano(), id))
}

func notificationPrefix(userID string) []byte {
	return []byte("notif:" + userID + ":")
}

func notificationKey(userID string, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("notif:%s:%019d:%s", userID, at.UnixNano(), id))
}

func userKey(email string) []byte {
	return []byte("user:" + email)
}
