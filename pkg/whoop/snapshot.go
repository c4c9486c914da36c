package whoop

import (
	"context"
	"errors"
	"fmt"
)

// DefaultWorkoutLimit is how many recent workouts a snapshot carries.
const DefaultWorkoutLimit = 3

// LatestCycle returns the most recent physiological cycle, or nil when the
// account has none.
func (c *Client) LatestCycle(ctx context.Context) (*Cycle, error) {
	page, err := GetPaginated(ctx, c, "/v2/cycle", 1, parseCycle)
	if err != nil {
		return nil, err
	}
	if len(page.Records) == 0 {
		return nil, nil
	}
	return &page.Records[0], nil
}

// LatestRecovery returns the most recent recovery, or nil when none exists.
func (c *Client) LatestRecovery(ctx context.Context) (*Recovery, error) {
	page, err := GetPaginated(ctx, c, "/v2/recovery", 1, parseRecovery)
	if err != nil {
		return nil, err
	}
	if len(page.Records) == 0 {
		return nil, nil
	}
	return &page.Records[0], nil
}

// RecoveryForCycle returns the recovery computed for one cycle. A 404 means
// the cycle has no recovery yet and reports nil, not an error.
func (c *Client) RecoveryForCycle(ctx context.Context, cycleID int64) (*Recovery, error) {
	data, err := c.Get(ctx, fmt.Sprintf("/v2/cycle/%d/recovery", cycleID), nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	recovery, err := parseRecovery(data)
	if err != nil {
		return nil, err
	}
	return &recovery, nil
}

// LatestSleep returns the most recent sleep activity, or nil when none
// exists.
func (c *Client) LatestSleep(ctx context.Context) (*Sleep, error) {
	page, err := GetPaginated(ctx, c, "/v2/activity/sleep", 1, parseSleep)
	if err != nil {
		return nil, err
	}
	if len(page.Records) == 0 {
		return nil, nil
	}
	return &page.Records[0], nil
}

// SleepForCycle returns the sleep tied to one cycle, nil on 404.
func (c *Client) SleepForCycle(ctx context.Context, cycleID int64) (*Sleep, error) {
	data, err := c.Get(ctx, fmt.Sprintf("/v2/cycle/%d/sleep", cycleID), nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	sleep, err := parseSleep(data)
	if err != nil {
		return nil, err
	}
	return &sleep, nil
}

// LatestWorkouts returns up to limit most recent workouts.
func (c *Client) LatestWorkouts(ctx context.Context, limit int) ([]Workout, error) {
	page, err := GetPaginated(ctx, c, "/v2/activity/workout", limit, parseWorkout)
	if err != nil {
		return nil, err
	}
	return page.Records, nil
}

// Profile returns the basic user profile.
func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	data, err := c.Get(ctx, "/v2/user/profile/basic", nil)
	if err != nil {
		return nil, err
	}
	profile, err := parseProfile(data)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// BodyMeasurement returns the user's body measurement.
func (c *Client) BodyMeasurement(ctx context.Context) (*BodyMeasurement, error) {
	data, err := c.Get(ctx, "/v2/user/measurement/body", nil)
	if err != nil {
		return nil, err
	}
	body, err := parseBodyMeasurement(data)
	if err != nil {
		return nil, err
	}
	return &body, nil
}

// GetSnapshot assembles the composite view the planner consumes: the latest
// cycle, the recovery and sleep tied to that specific cycle (falling back to
// the latest endpoints when there is no current cycle), recent workouts,
// profile, and body measurement. A workoutLimit of zero or less uses
// DefaultWorkoutLimit.
func (c *Client) GetSnapshot(ctx context.Context, workoutLimit int) (*Snapshot, error) {
	if workoutLimit <= 0 {
		workoutLimit = DefaultWorkoutLimit
	}
	cycle, err := c.LatestCycle(ctx)
	if err != nil {
		return nil, err
	}

	var recovery *Recovery
	var sleep *Sleep
	if cycle != nil {
		if recovery, err = c.RecoveryForCycle(ctx, cycle.ID); err != nil {
			return nil, err
		}
		if sleep, err = c.SleepForCycle(ctx, cycle.ID); err != nil {
			return nil, err
		}
	} else {
		if recovery, err = c.LatestRecovery(ctx); err != nil {
			return nil, err
		}
		if sleep, err = c.LatestSleep(ctx); err != nil {
			return nil, err
		}
	}

	workouts, err := c.LatestWorkouts(ctx, workoutLimit)
	if err != nil {
		return nil, err
	}
	profile, err := c.Profile(ctx)
	if err != nil {
		return nil, err
	}
	body, err := c.BodyMeasurement(ctx)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Cycle:    cycle,
		Recovery: recovery,
		Sleep:    sleep,
		Workouts: workouts,
		Profile:  profile,
		Body:     body,
	}, nil
}

func isNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == 404
}
