package eventstore

import (
	"context"

	"github.com/ledgerflow/eventstore/metadata"
)

type (
	// EventStream is the result of reading a stream. Its cursor starts
	// before the first row; call Next to advance.
	EventStream interface {
		// Next prepares the next result for reading. It returns true on
		// success, false when exhausted or on error; consult Err to tell
		// the two apart.
		Next() bool
		// Err returns the error, if any, encountered during iteration.
		Err() error
		// Close releases the underlying rows. Idempotent.
		Close() error
		// Message returns the current message and its stream position (no).
		Message() (Message, int64, error)
		// Rewind resets the iterator to replay from its starting position.
		Rewind() error
		// Count returns the number of events the iterator will yield,
		// capped by any user-supplied count.
		Count(ctx context.Context) (int64, error)
	}

	// ReadOnlyEventStore is the read side of the store (C6, spec §4.4)
	ReadOnlyEventStore interface {
		// HasStream returns true if the stream's registry row (and table) exists
		HasStream(ctx context.Context, streamName StreamName) (bool, error)

		// Load returns events with no >= fromNumber, ascending, filtered by matcher
		Load(ctx context.Context, streamName StreamName, fromNumber int64, count *uint, matcher metadata.Matcher) (EventStream, error)

		// LoadReverse returns events with no <= fromNumber, descending, filtered by matcher.
		// fromNumber == 0 means "from the highest no in the stream".
		LoadReverse(ctx context.Context, streamName StreamName, fromNumber int64, count *uint, matcher metadata.Matcher) (EventStream, error)

		// FetchStreamMetadata returns the decoded metadata object stored on the stream's registry row
		FetchStreamMetadata(ctx context.Context, streamName StreamName) (map[string]interface{}, error)

		// FetchStreamNames returns a page of logical stream names, optionally filtered
		FetchStreamNames(ctx context.Context, filter *string, matcher metadata.Matcher, limit, offset uint) ([]StreamName, error)
		// FetchStreamNamesRegex is like FetchStreamNames but filter is a dialect regex
		FetchStreamNamesRegex(ctx context.Context, pattern string, matcher metadata.Matcher, limit, offset uint) ([]StreamName, error)
		// FetchCategoryNames returns a page of distinct category values
		FetchCategoryNames(ctx context.Context, filter *string, limit, offset uint) ([]string, error)
		// FetchCategoryNamesRegex is like FetchCategoryNames but filter is a dialect regex
		FetchCategoryNamesRegex(ctx context.Context, pattern string, limit, offset uint) ([]string, error)
	}

	// EventStore is the full read/write interface of the store (C6)
	EventStore interface {
		ReadOnlyEventStore

		// Create establishes the stream's registry row, table, and appends
		// the (possibly empty) initial batch atomically.
		Create(ctx context.Context, streamName StreamName, events []Message) error

		// AppendTo appends events to an existing stream
		AppendTo(ctx context.Context, streamName StreamName, events []Message) error

		// Delete removes the stream's registry row and drops its table
		Delete(ctx context.Context, streamName StreamName) error

		// UpdateStreamMetadata replaces the metadata object stored on the stream's registry row
		UpdateStreamMetadata(ctx context.Context, streamName StreamName, metadata map[string]interface{}) error
	}
)

// ReadEventStream reads the entire event stream and returns it's content as a slice.
// The main purpose of the function is for testing and debugging.
func ReadEventStream(stream EventStream) ([]Message, []int64, error) {
	var messages []Message
	var messageNumbers []int64
	for stream.Next() {
		msg, msgNumber, err := stream.Message()
		if err != nil {
			return nil, nil, err
		}

		messages = append(messages, msg)
		messageNumbers = append(messageNumbers, msgNumber)
	}

	if err := stream.Err(); err != nil {
		return nil, nil, err
	}

	return messages, messageNumbers, nil
}
