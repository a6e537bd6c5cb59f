// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package main

import "github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/internal/cli"

func main() {
	cli.Execute()
}
