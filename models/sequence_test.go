package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validSequence() *Sequence {
	return &Sequence{
		EmailThreads: []EmailThread{
			{ThreadNumber: 1, Emails: []EmailStep{
				{Subject: "quick question", Body: "first email"},
				{Body: "bump"},
			}},
		},
		LinkedInSteps: []LinkedInStep{
			{StepNumber: 1, Type: LinkedInStepConnectionRequest},
			{StepNumber: 2, Type: LinkedInStepMessage, Body: "thanks for connecting"},
			{StepNumber: 3, Type: LinkedInStepViewProfile},
		},
	}
}

func TestValidateContent(t *testing.T) {
	t.Run("valid sequence passes", func(t *testing.T) {
		assert.NoError(t, validSequence().ValidateContent())
	})

	t.Run("no content at all", func(t *testing.T) {
		s := &Sequence{}
		assert.ErrorContains(t, s.ValidateContent(), "no content")
	})

	t.Run("email only is fine", func(t *testing.T) {
		s := validSequence()
		s.LinkedInSteps = nil
		assert.NoError(t, s.ValidateContent())
	})

	t.Run("missing connection request", func(t *testing.T) {
		s := validSequence()
		s.LinkedInSteps = []LinkedInStep{
			{StepNumber: 1, Type: LinkedInStepMessage, Body: "hello"},
		}
		assert.ErrorContains(t, s.ValidateContent(), "exactly one connection_request")
	})

	t.Run("two connection requests", func(t *testing.T) {
		s := validSequence()
		s.LinkedInSteps = append(s.LinkedInSteps, LinkedInStep{StepNumber: 4, Type: LinkedInStepConnectionRequest})
		assert.ErrorContains(t, s.ValidateContent(), "exactly one connection_request")
	})

	t.Run("connection request not first", func(t *testing.T) {
		s := validSequence()
		s.LinkedInSteps = []LinkedInStep{
			{StepNumber: 1, Type: LinkedInStepMessage, Body: "hello"},
			{StepNumber: 2, Type: LinkedInStepConnectionRequest},
		}
		assert.ErrorContains(t, s.ValidateContent(), "must be the first")
	})

	t.Run("step numbers must be strictly increasing", func(t *testing.T) {
		s := validSequence()
		s.LinkedInSteps[2].StepNumber = 2
		assert.ErrorContains(t, s.ValidateContent(), "strictly increasing")
	})

	t.Run("first email needs a subject", func(t *testing.T) {
		s := validSequence()
		s.EmailThreads[0].Emails[0].Subject = ""
		assert.ErrorContains(t, s.ValidateContent(), "needs a subject")
	})

	t.Run("empty email body", func(t *testing.T) {
		s := validSequence()
		s.EmailThreads[0].Emails[1].Body = ""
		assert.ErrorContains(t, s.ValidateContent(), "empty body")
	})
}

func TestStepTotals(t *testing.T) {
	s := validSequence()
	assert.Equal(t, 2, s.EmailStepTotal())
	assert.Equal(t, 3, s.LinkedInStepTotal())

	cr := s.ConnectionRequestStep()
	assert.NotNil(t, cr)
	assert.Equal(t, 1, cr.StepNumber)
}

func TestIsActive(t *testing.T) {
	s := &Sequence{Status: SequenceStatusDeployed}
	assert.True(t, s.IsActive())

	s.Status = SequenceStatusCancelled
	assert.False(t, s.IsActive())
}
