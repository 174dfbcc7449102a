package lifecycle

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/stepflow/pkg/errors"
)

func TestStateMachine_DefaultTransitions(t *testing.T) {
	tests := []struct {
		name      string
		status    Status
		published int
		event     string
		want      Status
		wantErr   bool
	}{
		{name: "publish draft", status: StatusDraft, event: EventPublish, want: StatusPublishing},
		{name: "republish", status: StatusPublished, published: 1, event: EventPublish, want: StatusPublishing},
		{name: "publish succeeds", status: StatusPublishing, event: EventPublishSucceeded, want: StatusPublished},
		{name: "first publish fails", status: StatusPublishing, event: EventPublishFailed, want: StatusDraft},
		{name: "republish fails", status: StatusPublishing, published: 2, event: EventPublishFailed, want: StatusPublished},
		{name: "already publishing", status: StatusPublishing, event: EventPublish, wantErr: true},
		{name: "success without publish", status: StatusDraft, event: EventPublishSucceeded, wantErr: true},
		{name: "unknown event", status: StatusDraft, event: "archive", wantErr: true},
	}

	sm := NewStateMachine(DefaultTransitions())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Record{Status: tt.status, PublishedVersion: tt.published}
			err := sm.Trigger(r, tt.event)
			if tt.wantErr {
				var ve *errors.ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, tt.status, r.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Status)
		})
	}
}

func TestStateMachine_AvailableEvents(t *testing.T) {
	sm := NewStateMachine(DefaultTransitions())

	events := sm.AvailableEvents(&Record{Status: StatusPublishing})
	sort.Strings(events)
	assert.Equal(t, []string{EventPublishFailed, EventPublishSucceeded}, events)

	assert.Equal(t, []string{EventPublish}, sm.AvailableEvents(&Record{Status: StatusDraft}))
}
